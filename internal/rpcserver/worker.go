package rpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rpcframe/internal/arena"
	"rpcframe/internal/dispatch"
	"rpcframe/internal/registry"
	"rpcframe/internal/rpcctx"
	"rpcframe/internal/status"
	"rpcframe/internal/wire"
)

// workerState mirrors the single request/response lifecycle a
// ConnectionWorker walks through. It exists for introspection and metrics,
// not for control flow — run() advances it linearly and never branches on
// its own state.
type workerState int32

const (
	stateAccepted workerState = iota
	stateReadingHeader
	stateReadingBody
	stateDispatching
	stateWriting
	stateDone
)

func (s workerState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateReadingHeader:
		return "reading_header"
	case stateReadingBody:
		return "reading_body"
	case stateDispatching:
		return "dispatching"
	case stateWriting:
		return "writing"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Worker owns one accepted connection end to end: read one frame, dispatch
// it, write one response frame, close. The spec gives each connection
// exactly one request/response cycle — there is no keep-alive loop here to
// mirror.
type Worker struct {
	id        string
	conn      net.Conn
	srv       *Server
	arena     *arena.Arena
	state     atomic.Int32
	done      atomic.Bool
	closeOnce sync.Once
	startedAt time.Time
}

func newWorker(srv *Server, conn net.Conn) *Worker {
	return &Worker{
		id:        uuid.NewString(),
		conn:      conn,
		srv:       srv,
		arena:     arena.New(),
		startedAt: time.Now(),
	}
}

func (w *Worker) setState(s workerState) { w.state.Store(int32(s)) }

// State reports the worker's current lifecycle stage, for diagnostics.
func (w *Worker) State() string { return workerState(w.state.Load()).String() }

// Done reports whether run has returned. Server.acceptLoop polls this to
// reap finished workers out of its live-worker set.
func (w *Worker) Done() bool { return w.done.Load() }

// close closes the underlying connection at most once, however many times
// it is called. Its only caller is finish, on run's completion path:
// Server.Shutdown does not close worker connections, and a worker blocked in
// a read leaves it once ReadExact observes the shutdown signal.
func (w *Worker) close() {
	w.closeOnce.Do(func() {
		_ = w.conn.Close()
	})
}

// shutdownSignal adapts Server.shuttingDown to wire.ShutdownSignal.
func (w *Worker) shutdownSignal() bool { return w.srv.shuttingDown() }

// run executes the worker's entire lifecycle. It never panics on a
// malformed or hostile peer: every failure path either writes a best-effort
// error envelope or gives up silently, then always reaches finish().
func (w *Worker) run(lookup *registry.Lookup) {
	defer w.finish()
	w.setState(stateAccepted)

	log := w.srv.cfg.Logger.With("worker_id", w.id, "remote_addr", w.conn.RemoteAddr().String())

	ctx, span := w.srv.cfg.Tracer.Start(context.Background(), "rpcframe.worker")
	defer span.End()
	span.SetAttributes(attribute.String("worker.id", w.id))

	header := make([]byte, wire.HeaderSize)
	w.setState(stateReadingHeader)
	n, err := wire.ReadExact(w.conn, header, time.Now().Add(w.srv.cfg.ReadBudget), w.shutdownSignal)
	if err != nil {
		w.handleHeaderReadError(log, span, n, err)
		return
	}

	compressed, length, err := wire.DecodeHeader(header)
	if err != nil {
		log.Warn("rejecting frame", "reason", err)
		w.writeBestEffort(status.New(status.InvalidArgument, "Message too large"))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if compressed {
		log.Warn("rejecting compressed frame")
		w.writeBestEffort(status.New(status.Unimplemented, "Compression not supported"))
		span.SetStatus(codes.Error, "compression not supported")
		return
	}
	if int(length) > w.srv.cfg.MaxFrameSize {
		log.Warn("rejecting oversized frame", "length", length)
		w.writeBestEffort(status.New(status.InvalidArgument, "Message too large"))
		span.SetStatus(codes.Error, "message too large")
		return
	}

	w.setState(stateReadingBody)
	body := w.arena.Alloc(int(length))
	n, err = wire.ReadExact(w.conn, body, time.Now().Add(w.srv.cfg.ReadBudget), w.shutdownSignal)
	if err != nil {
		w.handleBodyReadError(log, span, n, err)
		return
	}

	w.setState(stateDispatching)
	rc := rpcctx.New(ctx, w.arena, "", body)
	payload := dispatch.Dispatch(rc, lookup)

	w.setState(stateWriting)
	frame, err := wire.Encode(false, payload)
	if err != nil {
		log.Error("encode response frame", "err", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.srv.cfg.ReadBudget))
	if _, err := w.conn.Write(frame); err != nil {
		log.Warn("write response frame", "err", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	w.setState(stateDone)
}

// handleHeaderReadError translates a header-phase read failure into either a
// best-effort protocol-error response or a silent exit. A header cut short
// by the peer (fewer than wire.HeaderSize bytes followed by EOF) is treated
// as a protocol violation worth reporting; a clean reset or a
// shutdown-driven abort gets no reply, since there is usually nothing left
// to write to.
func (w *Worker) handleHeaderReadError(log *slog.Logger, span trace.Span, n int, err error) {
	switch err {
	case wire.ErrTimeout:
		log.Warn("header read timed out")
		w.writeBestEffort(status.New(status.DeadlineExceeded, "Request timed out"))
	case wire.ErrUnexpectedEOF:
		log.Warn("incomplete header", "bytes_received", n)
		w.writeBestEffort(status.New(status.InvalidArgument, "Invalid request: incomplete header"))
	case wire.ErrConnectionReset:
		log.Debug("peer reset before sending a header")
	case wire.ErrConnectionClosed:
		log.Debug("abandoning read: server is shutting down")
	default:
		log.Warn("header read failed", "err", err)
	}
	span.SetStatus(codes.Error, err.Error())
}

// handleBodyReadError mirrors handleHeaderReadError for the body phase. A
// body cut short by the peer gets no reply: the client already knows it
// didn't finish sending, and the connection is usually no longer writable
// anyway.
func (w *Worker) handleBodyReadError(log *slog.Logger, span trace.Span, n int, err error) {
	switch err {
	case wire.ErrTimeout:
		log.Warn("body read timed out")
		w.writeBestEffort(status.New(status.DeadlineExceeded, "Request timed out"))
	case wire.ErrConnectionReset, wire.ErrUnexpectedEOF:
		log.Debug("peer disconnected mid-body", "bytes_received", n)
	case wire.ErrConnectionClosed:
		log.Debug("abandoning read: server is shutting down")
	default:
		log.Warn("body read failed", "err", err)
	}
	span.SetStatus(codes.Error, err.Error())
}

// writeBestEffort tries to write a synthetic error envelope for a failure
// that happened before dispatch ever got a chance to build one. Since the
// request's id, if any, was never parsed at this point the envelope omits
// it entirely, matching dispatch's own id-echo rule. Write errors (the peer
// is usually already gone) are deliberately ignored.
func (w *Worker) writeBestEffort(statusErr *status.Error) {
	body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","error":{"code":%d,"message":%q}}`, int(statusErr.Code), statusErr.Message))
	frame, err := wire.Encode(false, body)
	if err != nil {
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(1 * time.Second))
	_, _ = w.conn.Write(frame)
}

func (w *Worker) finish() {
	w.close()
	w.done.Store(true)
	w.srv.recordWorkerDone(w, time.Since(w.startedAt))
}
