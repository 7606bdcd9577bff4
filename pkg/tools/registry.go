// Package tools is the registry of functions the remote assistant may call.
//
// Handlers take the decoded argument object and return any JSON-encodable
// result. Registration is last-wins and may happen before or during a
// session. A tool may be declared (advertised to the model) without a
// handler; calls to it are treated as misses.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler runs a tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Declaration advertises a tool to the model.
type Declaration struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitzero" yaml:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitzero" yaml:"-"`
}

// Tool is a declaration with an optional handler.
type Tool struct {
	Declaration
	Handler Handler
}

// Registry maps tool names to handlers. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register sets the handler for name, replacing any previous handler. An
// existing declaration for name is kept.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tools[name]; ok {
		t.Handler = h
		return
	}
	r.tools[name] = &Tool{Declaration: Declaration{Name: name}, Handler: h}
}

// Add registers a declared tool, replacing any previous one with the same
// name. A nil Handler keeps the previous handler.
func (r *Registry) Add(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	if cp.Handler == nil {
		if prev, ok := r.tools[t.Name]; ok {
			cp.Handler = prev.Handler
		}
	}
	r.tools[t.Name] = &cp
}

// Declare adds or replaces declarations without touching handlers.
func (r *Registry) Declare(decls ...Declaration) {
	for _, d := range decls {
		r.Add(&Tool{Declaration: d})
	}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok || t.Handler == nil {
		return nil, false
	}
	return t.Handler, true
}

// Invoke calls the handler registered under name. found is false when no
// handler exists, in which case nothing is called. A panicking handler is
// reported as an error.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, found bool, err error) {
	h, ok := r.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool handler panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("tools: %s panicked: %v", name, p)
		}
	}()
	result, err = h(ctx, args)
	return result, true, err
}

// Names returns the sorted names of all tools with a handler.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, t := range r.tools {
		if t.Handler != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Declarations returns every tool's declaration sorted by name. Tools
// registered without a schema are declared with an empty object schema.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		d := t.Declaration
		if d.Parameters == nil {
			d.Parameters = &jsonschema.Schema{Type: "object"}
		}
		decls = append(decls, d)
	}
	slices.SortFunc(decls, func(a, b Declaration) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return decls
}
