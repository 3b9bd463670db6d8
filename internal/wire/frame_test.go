package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte(`{"jsonrpc":"2.0","method":"ping"}`)
	frame, err := Encode(false, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frame) != HeaderSize+len(payload) {
		t.Fatalf("len(frame) = %d, want %d", len(frame), HeaderSize+len(payload))
	}
	compressed, length, err := DecodeHeader(frame[:HeaderSize])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if compressed {
		t.Fatalf("compressed = true, want false")
	}
	if int(length) != len(payload) {
		t.Fatalf("length = %d, want %d", length, len(payload))
	}
	if !bytes.Equal(frame[HeaderSize:], payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestEncodeCompressedFlag(t *testing.T) {
	frame, err := Encode(true, []byte("x"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[0] != 1 {
		t.Fatalf("compressed byte = %d, want 1", frame[0])
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(false, make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestDecodeHeaderRejectsOversizedLength(t *testing.T) {
	header := make([]byte, HeaderSize)
	header[1] = 0xFF // length field well beyond MaxFrameSize
	_, _, err := DecodeHeader(header)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, _, err := DecodeHeader([]byte{0, 0, 0, 0})
	if !errors.Is(err, ErrIncompleteHeader) {
		t.Fatalf("err = %v, want ErrIncompleteHeader", err)
	}
}

func TestEncodeIntoAppends(t *testing.T) {
	dst := []byte("prefix:")
	out, err := EncodeInto(dst, false, []byte("payload"))
	if err != nil {
		t.Fatalf("EncodeInto: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("prefix:")) {
		t.Fatalf("EncodeInto did not preserve prefix: %q", out)
	}
	_, length, err := DecodeHeader(out[len("prefix:"):])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if int(length) != len("payload") {
		t.Fatalf("length = %d, want %d", length, len("payload"))
	}
}
