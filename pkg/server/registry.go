package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

// DomainError is returned by a Handler to signal an application-level
// failure that should surface as the generic JSON-RPC application
// error (-32000) rather than an internal server error. Anything a
// handler returns that is not a *DomainError becomes -32603.
type DomainError struct {
	Message string
	Data    any
}

func (e *DomainError) Error() string { return e.Message }

func NewDomainError(message string, data any) *DomainError {
	return &DomainError{Message: message, Data: data}
}

// Handler processes a registered method's raw params against the live
// task store and returns a result to serialise into the envelope, or
// an error (a *DomainError becomes -32000; anything else becomes
// -32603).
type Handler func(ctx context.Context, store *taskstore.Store, params json.RawMessage) (any, error)

type methodEntry struct {
	handler Handler
	schema  *jsonschema.Schema
}

// Registry holds the dispatch table for custom methods, each
// registered with a declared JSON Schema for its params. The four
// built-in task methods are not stored here: Server.dispatch routes
// them itself before consulting the registry.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]methodEntry
	seq     int
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]methodEntry)}
}

// registerBuiltin adds a method with no schema validation. The server
// does not call it: the four core methods are routed by Server.dispatch
// and decode their params directly into typed structs.
func (r *Registry) registerBuiltin(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = methodEntry{handler: h}
}

// RegisterMethod compiles paramSchema eagerly (fail fast on a
// malformed schema, matching SPEC_FULL's Design Notes) and adds name
// to the custom-method dispatch table. Incoming params
// for this method are validated against the schema before h is
// invoked; a validation failure is reported to the caller as -32602
// without the handler ever running.
func (r *Registry) RegisterMethod(name string, paramSchema []byte, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	resourceURL := fmt.Sprintf("mem://agentvault/custom-method/%d/%s.json", r.seq, name)

	var doc any
	if err := json.Unmarshal(paramSchema, &doc); err != nil {
		return fmt.Errorf("registering method %q: malformed schema: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("registering method %q: adding schema resource: %w", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("registering method %q: compiling schema: %w", name, err)
	}

	r.methods[name] = methodEntry{handler: h, schema: schema}
	return nil
}

func (r *Registry) lookup(name string) (methodEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.methods[name]
	return e, ok
}

// validateParams runs a registered method's JSON Schema (if any)
// against the raw params. Built-in methods carry no schema and always
// pass; custom methods always carry one (RegisterMethod requires it).
func (e methodEntry) validateParams(raw json.RawMessage) error {
	if e.schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return e.schema.Validate(v)
}
