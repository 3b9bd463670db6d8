// Package registry implements the name→procedure map consumed by the
// dispatcher. A Registry is mutable only through a Builder; once Freeze is
// called (by Server.Listen) it is handed out as a read-only Lookup, which
// removes the need to synchronize reads against writes entirely — there
// are no writes once a server is listening.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"rpcframe/internal/rpcctx"
	"rpcframe/internal/schema"
)

// ErrProcedureAlreadyExists is returned by Builder.Register when name was
// already registered.
var ErrProcedureAlreadyExists = errors.New("registry: procedure already exists")

// ErrNotFrozen names the programming error of using a registry that was
// never frozen. No function in this package returns it: Builder has no
// lookup methods, and a Lookup can only be obtained from Freeze.
var ErrNotFrozen = errors.New("registry: not frozen")

// Handler is a registered procedure's implementation. params is nil when
// the request omitted the field entirely; a schema-validated params value
// is always a decoded JSON value (map[string]interface{}, string, etc.),
// never raw bytes.
type Handler func(rc *rpcctx.Context, params interface{}) (interface{}, error)

// Procedure is one registered name's full definition.
type Procedure struct {
	Name         string
	Handler      Handler
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
}

// Builder accumulates Procedures before a server starts listening. It is
// not safe for concurrent use — registration happens during a single
// goroutine's setup phase, before Listen spawns anything.
type Builder struct {
	procedures map[string]*Procedure
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{procedures: make(map[string]*Procedure)}
}

// Register adds a procedure. name is copied into the Builder's own storage
// (via Go's string immutability — no separate duplication step is needed,
// unlike the teacher's C-style owned-string registry).
func (b *Builder) Register(name string, handler Handler, input, output *schema.Schema) error {
	if name == "" {
		return fmt.Errorf("registry: empty procedure name")
	}
	if handler == nil {
		return fmt.Errorf("registry: nil handler for %q", name)
	}
	if _, exists := b.procedures[name]; exists {
		return fmt.Errorf("%w: %q", ErrProcedureAlreadyExists, name)
	}
	b.procedures[name] = &Procedure{
		Name:         name,
		Handler:      handler,
		InputSchema:  input,
		OutputSchema: output,
	}
	return nil
}

// Freeze returns a read-only Lookup over everything registered so far. The
// Builder itself should not be reused after Freeze; Server.Listen enforces
// this by only ever calling Freeze once.
func (b *Builder) Freeze() *Lookup {
	procs := make(map[string]*Procedure, len(b.procedures))
	for name, p := range b.procedures {
		procs[name] = p
	}
	return &Lookup{procedures: procs}
}

// Lookup is the immutable, post-freeze view of a Registry. It is safe for
// concurrent reads from any number of ConnectionWorkers because nothing
// ever writes to it again.
type Lookup struct {
	procedures map[string]*Procedure
}

// Find returns the named Procedure, or nil if it was never registered.
func (l *Lookup) Find(name string) *Procedure {
	return l.procedures[name]
}

// Names returns every registered procedure name. Used only for
// introspection (the demo CLI's "procedures" subcommand); the slice is a
// fresh copy each call.
func (l *Lookup) Names() []string {
	names := make([]string, 0, len(l.procedures))
	for name := range l.procedures {
		names = append(names, name)
	}
	return names
}

// Len reports how many procedures are registered.
func (l *Lookup) Len() int { return len(l.procedures) }

// DecodeParams is a convenience used by callers that already have a
// procedure's raw (already-unmarshaled-from-envelope) params value and want
// to re-marshal/unmarshal it into a concrete Go type after schema
// validation has passed. Handlers are free to ignore this and work with the
// interface{} params directly.
func DecodeParams(params interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
