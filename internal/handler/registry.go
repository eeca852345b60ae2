package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps job types to handlers. Registration normally happens at
// startup, but the registry is safe for concurrent use so handlers can be
// added while executions run.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

type registration struct {
	handler Handler
	version string
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a handler to a job type. The version participates in cache
// keys: bump it when the handler's behavior changes so stale cached outputs
// are not reused. Registering the same type twice replaces the binding.
func (r *Registry) Register(jobType string, h Handler, version string) error {
	if jobType == "" {
		return fmt.Errorf("job type is required")
	}
	if h == nil {
		return fmt.Errorf("handler for %q is nil", jobType)
	}
	if version == "" {
		version = "v1"
	}

	r.mu.Lock()
	r.handlers[jobType] = registration{handler: h, version: version}
	r.mu.Unlock()
	return nil
}

// RegisterFunc is a convenience wrapper around Register for plain functions.
func (r *Registry) RegisterFunc(jobType string, fn Func, version string) error {
	return r.Register(jobType, fn, version)
}

// Resolve returns the handler for a job type.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	r.mu.RLock()
	reg, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}
	return reg.handler, nil
}

// Version returns the registered version for a job type, "" when unknown.
func (r *Registry) Version(jobType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType].version
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
