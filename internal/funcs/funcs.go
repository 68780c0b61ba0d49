// Package funcs provides the typed registry for device function intents.
// Intent resolution produces a function name; the registry maps the closed
// set of registered names to invocable handlers, validated at registration
// time. Unknown names resolve to a spoken "not found" result rather than a
// lookup failure.
package funcs

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/vox/internal/logging"
)

// NotFoundResult is spoken when intent resolution names a function that
// was never registered.
const NotFoundResult = "Sorry, I don't know how to do that yet."

// Function is one invocable device capability.
type Function interface {
	// Name returns the identifier intent resolution dispatches on.
	Name() string

	// Invoke runs the function and returns the text to speak back.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// InvokeFunc adapts a closure to the Function interface.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

type funcAdapter struct {
	name string
	fn   InvokeFunc
}

func (f *funcAdapter) Name() string { return f.name }

func (f *funcAdapter) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f.fn(ctx, args)
}

// New wraps a name and closure as a Function.
func New(name string, fn InvokeFunc) Function {
	return &funcAdapter{name: name, fn: fn}
}

// Registry holds the registered functions. It implements
// capability.FunctionExecutor so a session can use it directly.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Function
	order []string // registration order, for stable listings
	log   *logging.Logger
}

// NewRegistry creates an empty function registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		funcs: make(map[string]Function),
		log:   log.Sub("funcs"),
	}
}

// Register validates and adds a function. Empty names, nil functions, and
// duplicate names are rejected.
func (r *Registry) Register(f Function) error {
	if f == nil {
		return fmt.Errorf("funcs: nil function")
	}
	if f.Name() == "" {
		return fmt.Errorf("funcs: function with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[f.Name()]; exists {
		return fmt.Errorf("funcs: already registered: %s", f.Name())
	}
	r.funcs[f.Name()] = f
	r.order = append(r.order, f.Name())

	r.log.Debug().Str("function", f.Name()).Msg("function registered")
	return nil
}

// Get returns a function by name.
func (r *Registry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	return f, ok
}

// List returns registered names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// ExecuteFunction implements capability.FunctionExecutor. An unknown name
// yields NotFoundResult with no error; a handler error propagates so the
// stage boundary converts it to a spoken fallback.
func (r *Registry) ExecuteFunction(ctx context.Context, name string, args map[string]any) (string, error) {
	f, ok := r.Get(name)
	if !ok {
		r.log.Warn().Str("function", name).Msg("unknown function name from intent resolution")
		return NotFoundResult, nil
	}

	result, err := f.Invoke(ctx, args)
	if err != nil {
		return "", fmt.Errorf("funcs: %s: %w", name, err)
	}
	return result, nil
}
