package rpcserver

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"rpcframe/internal/wire"
)

// Config controls a Server's listening address and timing budgets. The
// zero value is not valid; use DefaultConfig to get sane defaults and
// override only what you need, mirroring the teacher's envOr/intOr-built
// config struct (see cmd/rpcserver for the env/YAML-driven loader that
// produces one of these).
type Config struct {
	// ListenAddr is passed to net.Listen("tcp", ListenAddr). Use ":0" or a
	// host:0 pair to let the OS choose a port; Server.Addr() reports the
	// port actually bound.
	ListenAddr string

	// MaxFrameSize caps an accepted frame's payload length. Defaults to
	// wire.MaxFrameSize (10 MiB); the spec documents this as hard-coded but
	// leaves it open whether to make it configurable (see DESIGN.md), so
	// the engine does make it a knob without changing the default.
	MaxFrameSize int

	// ReadBudget is the independent wall-clock budget given to each of the
	// header read and the body read; they do not share a deadline.
	ReadBudget time.Duration

	// ShutdownBudget bounds the total time Shutdown may spend waiting for
	// in-flight workers before it gives up and leaks their goroutines.
	ShutdownBudget time.Duration

	// AcceptBackoff is how long the accept loop sleeps after an accept error
	// other than its own accept deadline expiring (which is retried at once).
	AcceptBackoff time.Duration

	// ReapInterval governs how often the background reaper removes finished
	// workers even when no new connection has just arrived (the accept loop
	// also reaps on every accepted connection; this adds a time-based
	// backstop so a quiet server doesn't accumulate done-but-unreaped
	// workers indefinitely). It is also the accept loop's accept deadline.
	ReapInterval time.Duration

	// MaxConnections bounds how many workers may run concurrently. 0 means
	// unbounded (one worker per accepted connection, as spec.md describes).
	// Connections accepted past the limit are closed immediately without a
	// response, since there is no header yet to reply to.
	MaxConnections int64

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

// DefaultConfig returns a Config with the budgets spec.md §5 specifies (5s
// read budgets, 5s shutdown budget) and a discard-nothing slog logger.
func DefaultConfig(listenAddr string) Config {
	return Config{
		ListenAddr:     listenAddr,
		MaxFrameSize:   wire.MaxFrameSize,
		ReadBudget:     wire.DefaultReadBudget,
		ShutdownBudget: 5 * time.Second,
		AcceptBackoff:  10 * time.Millisecond,
		ReapInterval:   2 * time.Second,
		Logger:         slog.Default(),
		Tracer:         otel.Tracer("rpcframe.server"),
		Meter:          otel.Meter("rpcframe.server"),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = wire.MaxFrameSize
	}
	if c.ReadBudget <= 0 {
		c.ReadBudget = wire.DefaultReadBudget
	}
	if c.ShutdownBudget <= 0 {
		c.ShutdownBudget = 5 * time.Second
	}
	if c.AcceptBackoff <= 0 {
		c.AcceptBackoff = 10 * time.Millisecond
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("rpcframe.server")
	}
	if c.Meter == nil {
		c.Meter = otel.Meter("rpcframe.server")
	}
	return c
}
