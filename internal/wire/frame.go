// Package wire implements the length-prefixed frame codec and a
// deadline-bounded exact-length reader used by the RPC engine.
//
// Wire format, one frame:
//
//	[1]byte  compressed flag (0 or 1)
//	[4]byte  big-endian payload length
//	[length]byte payload
//
// This mirrors the gRPC HTTP/2 "length-prefixed message" layout closely
// enough that a gRPC-aware byte inspector can make sense of a captured
// frame, even though frames here travel over plain TCP rather than HTTP/2.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of a frame header.
const HeaderSize = 5

// MaxFrameSize is the largest payload a frame may carry.
const MaxFrameSize = 10 << 20 // 10 MiB

// ErrMessageTooLarge is returned by Encode and DecodeHeader when a payload
// length exceeds MaxFrameSize.
var ErrMessageTooLarge = errors.New("wire: message too large")

// ErrIncompleteHeader is returned by DecodeHeader when fewer than
// HeaderSize bytes were supplied.
var ErrIncompleteHeader = errors.New("wire: incomplete header")

// Encode prepends the 5-byte header to payload and returns the full frame.
// The returned slice is a fresh allocation; callers on a hot path that
// already have an arena should prefer EncodeInto.
func Encode(compressed bool, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	out := make([]byte, HeaderSize+len(payload))
	writeHeader(out, compressed, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// EncodeInto appends a frame header plus payload to dst and returns the
// extended slice. When dst already has at least HeaderSize+len(payload)
// bytes of spare capacity, no allocation happens, which lets callers build
// a response frame out of an arena-backed buffer without an extra allocation.
func EncodeInto(dst []byte, compressed bool, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	var header [HeaderSize]byte
	writeHeader(header[:], compressed, uint32(len(payload)))
	dst = append(dst, header[:]...)
	dst = append(dst, payload...)
	return dst, nil
}

func writeHeader(b []byte, compressed bool, length uint32) {
	if compressed {
		b[0] = 1
	} else {
		b[0] = 0
	}
	binary.BigEndian.PutUint32(b[1:5], length)
}

// DecodeHeader parses the 5-byte header in b, reporting whether the
// compressed flag is set and the declared payload length. b must be at
// least HeaderSize bytes; DecodeHeader never reads past b[:HeaderSize].
func DecodeHeader(b []byte) (compressed bool, length uint32, err error) {
	if len(b) < HeaderSize {
		return false, 0, ErrIncompleteHeader
	}
	compressed = b[0] != 0
	length = binary.BigEndian.Uint32(b[1:5])
	if length > MaxFrameSize {
		return compressed, length, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	return compressed, length, nil
}
