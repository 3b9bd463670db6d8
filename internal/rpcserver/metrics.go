package rpcserver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// serverMetrics wraps the otel instruments the Server records against. A
// meter with no configured reader (the common case for an embedded Server in
// tests) still works — instruments with nothing subscribed are cheap no-ops.
type serverMetrics struct {
	accepted      metric.Int64Counter
	active        metric.Int64UpDownCounter
	rejected      metric.Int64Counter
	requestMillis metric.Float64Histogram
}

func newServerMetrics(meter metric.Meter) *serverMetrics {
	accepted, _ := meter.Int64Counter("rpcframe.connections.accepted",
		metric.WithDescription("Total TCP connections accepted"))
	active, _ := meter.Int64UpDownCounter("rpcframe.connections.active",
		metric.WithDescription("Connections currently owned by a live worker"))
	rejected, _ := meter.Int64Counter("rpcframe.connections.rejected",
		metric.WithDescription("Connections rejected or dropped by the accept loop"))
	requestMillis, _ := meter.Float64Histogram("rpcframe.request.duration_ms",
		metric.WithDescription("Wall-clock time from accept to response write, in milliseconds"))
	return &serverMetrics{
		accepted:      accepted,
		active:        active,
		rejected:      rejected,
		requestMillis: requestMillis,
	}
}

func (m *serverMetrics) recordAccepted() {
	ctx := context.Background()
	m.accepted.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *serverMetrics) recordRejected() {
	m.rejected.Add(context.Background(), 1)
}

func (m *serverMetrics) recordDone(d time.Duration) {
	ctx := context.Background()
	m.active.Add(ctx, -1)
	m.requestMillis.Record(ctx, float64(d.Microseconds())/1000.0)
}
