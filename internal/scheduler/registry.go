package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// JobFunc is a registered target function for scheduled jobs. The returned
// string is stored as the run result in the execution log.
type JobFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Registry maps logical function names to job functions. It replaces
// dynamic lookup by dotted path: every schedulable function is registered
// explicitly at startup, and unknown names are rejected when a job is
// added.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]JobFunc
}

// NewRegistry creates an empty function registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]JobFunc),
	}
}

// Register binds a function name. Registering the same name twice is an
// error: it would silently change the meaning of persisted jobs.
func (r *Registry) Register(name string, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("job function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("job function %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("job function %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Resolve returns the function bound to the given name.
func (r *Registry) Resolve(name string) (JobFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
