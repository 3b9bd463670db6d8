package wire

import (
	"errors"
	"io"
	"time"
)

// DefaultReadBudget is the per-read wall-clock budget applied independently
// to the header read and the body read; the two do not share a deadline.
const DefaultReadBudget = 5 * time.Second

// pollInterval bounds how long a single underlying Read call is allowed to
// block before ReadExact re-checks the shutdown flag and the overall
// deadline. The source this engine is modeled on polls a non-blocking
// socket and sleeps 1ms between attempts; net.Conn has no non-blocking
// read mode exposed to callers, so the equivalent here is a short rolling
// SetReadDeadline, which yields the same cooperative-cancellation
// granularity without spinning.
const pollInterval = 25 * time.Millisecond

// ErrTimeout is returned when the deadline elapses before buf is filled.
var ErrTimeout = errors.New("wire: read deadline exceeded")

// ErrConnectionReset is returned when the peer closes the connection before
// any bytes of the current read were received.
var ErrConnectionReset = errors.New("wire: connection reset by peer")

// ErrUnexpectedEOF is returned when the peer closes the connection after
// some, but not all, of the requested bytes were received.
var ErrUnexpectedEOF = errors.New("wire: unexpected eof")

// ErrConnectionClosed is returned when the shutdown flag is observed before
// buf is filled.
var ErrConnectionClosed = errors.New("wire: connection closed during shutdown")

// Conn is the minimal surface ReadExact needs from a connection. net.Conn
// satisfies it.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// ShutdownSignal reports whether a cooperative shutdown has been requested.
// It is polled between (and within) read attempts so a worker blocked on a
// slow or silent peer still notices shutdown within one pollInterval.
type ShutdownSignal func() bool

// ReadExact reads exactly len(buf) bytes from c, or fails with one of
// ErrTimeout, ErrConnectionReset, ErrUnexpectedEOF, or ErrConnectionClosed.
// deadline is an absolute point in time; the caller computes it as
// time.Now().Add(DefaultReadBudget) (or a custom budget) once per read, not
// once per connection — the header read and the body read each get their
// own fresh deadline.
//
// shutdown may be nil, in which case shutdown-driven cancellation is
// disabled (useful for tests that read from an in-memory pipe with no
// shutdown flag to observe).
func ReadExact(c Conn, buf []byte, deadline time.Time, shutdown ShutdownSignal) (int, error) {
	total := 0
	for total < len(buf) {
		if shutdown != nil && shutdown() {
			return total, ErrConnectionClosed
		}
		now := time.Now()
		if !now.Before(deadline) {
			return total, ErrTimeout
		}

		step := deadline
		if maxStep := now.Add(pollInterval); maxStep.Before(step) {
			step = maxStep
		}
		if err := c.SetReadDeadline(step); err != nil {
			return total, err
		}

		n, err := c.Read(buf[total:])
		total += n
		if err == nil {
			continue
		}
		if isTimeoutErr(err) {
			// Either our short poll-step deadline or a genuine would-block;
			// loop back around to re-check shutdown and the real deadline.
			continue
		}
		if errors.Is(err, io.EOF) {
			if total > 0 {
				return total, ErrUnexpectedEOF
			}
			return total, ErrConnectionReset
		}
		return total, err
	}
	return total, nil
}

type timeoutErr interface {
	Timeout() bool
}

func isTimeoutErr(err error) bool {
	var te timeoutErr
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
