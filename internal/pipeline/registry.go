package pipeline

import (
	"sync"

	"github.com/localnerve/featherdb/internal/apperr"
)

type triggerKey struct {
	Method   Method
	Name     string
	Position Position
}

type functionKey struct {
	Method Method
	Name   string
}

// Registry holds every registered trigger and function. Feather CRUD
// triggers and registered functions live in separate namespaces
// (PascalCase feather names vs. camelCase function names per spec.md
// §4.7) so a single Registry can dispatch both without ambiguity.
type Registry struct {
	mu        sync.RWMutex
	triggers  map[triggerKey]TriggerFunc
	functions map[functionKey]FunctionFunc
}

// NewRegistry returns an empty Registry ready for RegisterTrigger and
// RegisterFunction calls, typically made once at startup.
func NewRegistry() *Registry {
	return &Registry{
		triggers:  map[triggerKey]TriggerFunc{},
		functions: map[functionKey]FunctionFunc{},
	}
}

// RegisterTrigger attaches fn as the method/position hook for featherName.
// A feather may have at most one trigger per (method, position); a second
// registration for the same key is rejected rather than silently
// overwriting the first (spec.md §4.7).
func (r *Registry) RegisterTrigger(method Method, featherName string, position Position, fn TriggerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := triggerKey{Method: method, Name: featherName, Position: position}
	if _, exists := r.triggers[key]; exists {
		return apperr.Validation("a %s %s trigger is already registered for feather %q", position, method, featherName)
	}
	r.triggers[key] = fn
	return nil
}

func (r *Registry) lookupTrigger(method Method, featherName string, position Position) (TriggerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.triggers[triggerKey{Method: method, Name: featherName, Position: position}]
	return fn, ok
}

// RegisterFunction attaches fn as the handler for the camelCase (method,
// name) pair. Unlike a feather trigger, a registered function replaces
// CRUD execution outright rather than wrapping it.
func (r *Registry) RegisterFunction(method Method, name string, fn FunctionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := functionKey{Method: method, Name: name}
	if _, exists := r.functions[key]; exists {
		return apperr.Validation("a %s function is already registered for %q", method, name)
	}
	r.functions[key] = fn
	return nil
}

func (r *Registry) lookupFunction(method Method, name string) (FunctionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[functionKey{Method: method, Name: name}]
	return fn, ok
}
