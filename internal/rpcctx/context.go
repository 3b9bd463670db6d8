// Package rpcctx defines the per-request Context handed to procedure
// handlers: an arena allocator, the resolved procedure name, the raw
// request body, and a mutable response the handler may populate directly
// instead of returning a value (most handlers just return a value and let
// the dispatcher serialize it; Context.JSON exists for handlers that prefer
// to serialize the response themselves into arena-backed memory).
package rpcctx

import (
	"context"
	"encoding/json"

	"rpcframe/internal/arena"
)

// Request is the immutable, arena-scoped view of the incoming frame
// payload.
type Request struct {
	Body []byte
}

// Response is the mutable slot a handler may fill in directly via
// Context.JSON. The dispatcher prefers a handler's return value; Body is
// only consulted when a handler explicitly writes through JSON and returns
// (nil, nil).
type Response struct {
	Status uint16
	Body   []byte
}

// Context is created fresh per request by the owning ConnectionWorker and
// discarded (along with its Arena) when the worker exits.
type Context struct {
	// Ctx carries cancellation/deadline signaling for handlers that perform
	// their own downstream I/O. The engine itself never cancels a handler
	// mid-execution (spec: handlers run to completion), but a well-behaved
	// handler doing its own network calls should still respect Ctx.Done().
	Ctx context.Context

	Arena *arena.Arena

	// Params mirrors the resolved procedure name under the "procedure" key,
	// matching the data model's Context.params map. Handlers that need
	// structured input use the params argument passed alongside Context
	// instead of this map.
	Params map[string]string

	Request  Request
	Response Response
}

// New creates a Context for a single request, scoped to the given Arena.
func New(ctx context.Context, a *arena.Arena, procedure string, body []byte) *Context {
	return &Context{
		Ctx:      ctx,
		Arena:    a,
		Params:   map[string]string{"procedure": procedure},
		Request:  Request{Body: body},
		Response: Response{},
	}
}

// JSON serializes v into the Context's Response.Body and sets Status to
// 200. Handlers typically just `return v, nil` instead. JSON marshals v and
// then copies the bytes into the arena; each call replaces any Body written
// by an earlier call.
func (c *Context) JSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Response.Body = c.Arena.Copy(raw)
	c.Response.Status = 200
	return nil
}
