// Package demoprocs registers a handful of procedures used by the sample
// cmd/rpcserver binary and exercised end-to-end by cmd/rpcclient and
// cmd/rpcbench. None of this is part of the engine itself — a real
// deployment registers its own procedures against registry.Builder the same
// way.
package demoprocs

import (
	"fmt"
	"sync/atomic"

	"rpcframe/internal/registry"
	"rpcframe/internal/rpcctx"
	"rpcframe/internal/schema"
)

// Register adds the demo procedures to b. It never returns an error in
// practice (the names are fixed and distinct) but surfaces one anyway since
// Builder.Register can fail.
func Register(b *registry.Builder) error {
	if err := b.Register("health.check", healthCheck, nil, healthOutputSchema()); err != nil {
		return err
	}
	if err := b.Register("echo", echo, echoInputSchema(), echoOutputSchema()); err != nil {
		return err
	}

	var counter int64
	if err := b.Register("counter.increment", incrementCounter(&counter), incrementInputSchema(), counterOutputSchema()); err != nil {
		return err
	}
	if err := b.Register("counter.get", getCounter(&counter), nil, counterOutputSchema()); err != nil {
		return err
	}
	return nil
}

func healthCheck(_ *rpcctx.Context, _ interface{}) (interface{}, error) {
	return map[string]interface{}{"status": "ok"}, nil
}

func healthOutputSchema() *schema.Schema {
	return schema.Object([]string{"status"}, map[string]*schema.Schema{
		"status": schema.String(),
	}, false)
}

func echo(_ *rpcctx.Context, params interface{}) (interface{}, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := registry.DecodeParams(params, &in); err != nil {
		return nil, fmt.Errorf("echo: decode params: %w", err)
	}
	return map[string]interface{}{"message": in.Message}, nil
}

func echoInputSchema() *schema.Schema {
	return schema.Object([]string{"message"}, map[string]*schema.Schema{
		"message": schema.String(),
	}, false)
}

func echoOutputSchema() *schema.Schema {
	return schema.Object([]string{"message"}, map[string]*schema.Schema{
		"message": schema.String(),
	}, false)
}

func incrementCounter(counter *int64) registry.Handler {
	return func(_ *rpcctx.Context, params interface{}) (interface{}, error) {
		var in struct {
			By float64 `json:"by"`
		}
		if err := registry.DecodeParams(params, &in); err != nil {
			return nil, fmt.Errorf("counter.increment: decode params: %w", err)
		}
		v := atomic.AddInt64(counter, int64(in.By))
		return map[string]interface{}{"value": v}, nil
	}
}

func getCounter(counter *int64) registry.Handler {
	return func(_ *rpcctx.Context, _ interface{}) (interface{}, error) {
		return map[string]interface{}{"value": atomic.LoadInt64(counter)}, nil
	}
}

func incrementInputSchema() *schema.Schema {
	return schema.Object([]string{"by"}, map[string]*schema.Schema{
		"by": schema.Number(),
	}, false)
}

func counterOutputSchema() *schema.Schema {
	return schema.Object([]string{"value"}, map[string]*schema.Schema{
		"value": schema.Number(),
	}, false)
}
