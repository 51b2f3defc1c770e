package worker

import (
	"fmt"
	"slices"
	"sync"
)

// Registration is one launchable worker instance.
type Registration struct {
	// Name is the registered name, shared by every instance of it
	Name string

	// Index counts instances from 0
	Index int

	Class Class
}

// Registry maps worker names to classes. It is populated at startup and frozen
// before workers are launched.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	entries map[string][]Registration
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]Registration)}
}

// Register adds count independent instances of class under name. Consumer
// instances of one name share a consumer group, so count spreads the topic's
// partitions over them.
//
// Parameters:
//   - name: The worker name, unique in the registry
//   - class: How instances are built
//   - count: The number of instances, at least 1
//
// Returns:
//   - error: ErrInvalidCount, ErrInvalidClass, ErrRegistryFrozen or an
//     *AlreadyRegisteredError
func (r *Registry) Register(name string, class Class, count int) error {
	if count < 1 {
		return fmt.Errorf("register %q: %w", name, ErrInvalidCount)
	}
	if class.New == nil {
		return fmt.Errorf("register %q: %w", name, ErrInvalidClass)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: %w", name, ErrRegistryFrozen)
	}
	if _, ok := r.entries[name]; ok {
		return &AlreadyRegisteredError{Name: name}
	}

	regs := make([]Registration, count)
	for i := range regs {
		regs[i] = Registration{Name: name, Index: i, Class: class}
	}
	r.entries[name] = regs
	r.names = append(r.names, name)
	return nil
}

// Unregister removes every instance registered under name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("unregister %q: %w", name, ErrRegistryFrozen)
	}
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("unregister %q: %w", name, ErrNotRegistered)
	}
	delete(r.entries, name)
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	return nil
}

// Registered lists every instance in registration order.
func (r *Registry) Registered() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Registration
	for _, name := range r.names {
		out = append(out, r.entries[name]...)
	}
	return out
}

// Names lists registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Select returns every instance when names is empty, otherwise the instances of the
// named workers in registration order.
func (r *Registry) Select(names ...string) ([]Registration, error) {
	if len(names) == 0 {
		return r.Registered(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := r.entries[name]; !ok {
			return nil, fmt.Errorf("select %q: %w", name, ErrNotRegistered)
		}
		wanted[name] = struct{}{}
	}

	var out []Registration
	for _, name := range r.names {
		if _, ok := wanted[name]; ok {
			out = append(out, r.entries[name]...)
		}
	}
	return out, nil
}

// Freeze rejects further changes.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
