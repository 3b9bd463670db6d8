// Package rpcserver implements the accept loop, per-connection worker, and
// bounded cooperative shutdown described in spec.md §5 and §6. A Server
// binds one TCP listener, hands each accepted connection to its own Worker
// goroutine, and tears down within a fixed budget rather than waiting
// indefinitely for slow peers to go away.
package rpcserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"rpcframe/internal/registry"
)

// Server owns a listening socket and the set of Workers currently serving
// accepted connections.
type Server struct {
	cfg     Config
	builder *registry.Builder
	lookup  *registry.Lookup

	listener net.Listener
	running  atomic.Bool

	mu      sync.Mutex
	workers map[string]*Worker

	metrics *serverMetrics
	sema    *semaphore.Weighted

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// New builds a Server that will serve the procedures registered on builder.
// New takes ownership of builder; procedures may still be registered on it
// until Listen, which freezes it. builder must not be touched after Listen.
func New(cfg Config, builder *registry.Builder) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:     cfg,
		builder: builder,
		workers: make(map[string]*Worker),
		metrics: newServerMetrics(cfg.Meter),
	}
	if cfg.MaxConnections > 0 {
		s.sema = semaphore.NewWeighted(cfg.MaxConnections)
	}
	return s
}

// Listen binds the configured address, freezes the registry, and starts the
// accept and reaper loops in the background. It returns once the listener is
// bound; call Addr to discover the actual port when ListenAddr used ":0".
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("rpcserver: listen on %q: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	s.lookup = s.builder.Freeze()
	s.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	s.eg = eg
	eg.Go(func() error {
		s.acceptLoop(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.reapLoop(egCtx)
		return nil
	})

	s.cfg.Logger.Info("rpcserver listening",
		"addr", ln.Addr().String(),
		"max_frame_size", s.cfg.MaxFrameSize,
		"read_budget", s.cfg.ReadBudget,
		"shutdown_budget", s.cfg.ShutdownBudget,
		"procedures", s.lookup.Len(),
	)
	return nil
}

// Addr returns the listener's bound address. Only valid after Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Lookup exposes the frozen registry, mainly so cmd/rpcserver's
// rpc.procedures handler (which cmd/rpcclient's "procedures" subcommand
// calls) can list procedure names without a second registry.
func (s *Server) Lookup() *registry.Lookup { return s.lookup }

func (s *Server) shuttingDown() bool { return !s.running.Load() }

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if tcpLn, ok := s.listener.(*net.TCPListener); ok {
			_ = tcpLn.SetDeadline(time.Now().Add(s.cfg.ReapInterval))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.cfg.Logger.Warn("accept error", "err", err)
			time.Sleep(s.cfg.AcceptBackoff)
			continue
		}

		if s.sema != nil && !s.sema.TryAcquire(1) {
			s.metrics.recordRejected()
			_ = conn.Close()
			continue
		}

		s.reapOnce()
		s.metrics.recordAccepted()
		w := newWorker(s, conn)
		s.mu.Lock()
		s.workers[w.id] = w
		s.mu.Unlock()

		go func() {
			w.run(s.lookup)
			if s.sema != nil {
				s.sema.Release(1)
			}
		}()
	}
}

func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce()
		}
	}
}

func (s *Server) reapOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.workers {
		if w.Done() {
			delete(s.workers, id)
		}
	}
}

func (s *Server) recordWorkerDone(w *Worker, d time.Duration) {
	s.metrics.recordDone(d)
}

func (s *Server) liveWorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Shutdown stops accepting new connections and waits up to
// cfg.ShutdownBudget (bounded further by ctx's own deadline, if any) for
// in-flight workers to finish on their own. Workers still running when the
// budget expires are not forcibly killed — spec.md §6.4 treats this as an
// acceptable leak in exchange for never blocking shutdown on a hung peer.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	deadline := time.Now().Add(s.cfg.ShutdownBudget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		s.reapOnce()
		remaining := s.liveWorkerCount()
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			s.cfg.Logger.Warn("shutdown budget exceeded, abandoning in-flight workers",
				"remaining", remaining)
			break
		}
		select {
		case <-ctx.Done():
			s.cfg.Logger.Warn("shutdown context canceled before workers drained",
				"remaining", remaining)
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Only close the listener once every worker has been reaped: closing it
	// first would race with a connection already accept()ed but not yet
	// registered in s.workers, which acceptLoop's own ctx.Err() check above
	// is what actually stops new accepts.
	_ = s.listener.Close()

	if s.eg != nil {
		_ = s.eg.Wait()
	}
	s.cfg.Logger.Info("rpcserver shut down")
	return nil
}
