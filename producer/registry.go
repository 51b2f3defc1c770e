package producer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Constructor builds a producer from its registered config.
type Constructor func(cfg Config) (*Producer, error)

// registration is one named producer and its lazily built instance.
type registration struct {
	constructor Constructor

	// cfg is the config as registered; WithDefaults functions apply at build time
	cfg Config

	// init serializes construction of this entry only.
	init     sync.Mutex
	instance *Producer
}

// Registry holds named producers and builds each one on first use.
//
// Example:
//
//	registry := producer.NewRegistry()
//	_ = registry.Register("orders", nil, producer.Config{Topic: "orders"})
//
//	p, err := registry.Get(ctx, "orders")
//	if err != nil {
//	    return err
//	}
//	defer registry.CloseAll(ctx)
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registration

	// order keeps registration order for Names and CloseAll
	order []string
	base  []func(Config) Config
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

// WithDefaults adds a function applied to every config before construction, used to
// fill process-wide settings such as the broker URL. Functions run in the order added.
func (r *Registry) WithDefaults(fn func(Config) Config) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = append(r.base, fn)
	return r
}

// Register adds a producer. A nil constructor means New. Nothing is opened until
// the first Get.
//
// Parameters:
//   - name: The registry key, also the default Config.Name
//   - constructor: Builds the producer, nil for New
//   - cfg: The producer config
//
// Returns:
//   - error: ErrAlreadyRegistered when name is taken
func (r *Registry) Register(name string, constructor Constructor, cfg Config) error {
	if constructor == nil {
		constructor = New
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	r.entries[name] = &registration{constructor: constructor, cfg: cfg}
	r.order = append(r.order, name)
	return nil
}

// Get returns the producer registered as name, building it on the first call.
// Concurrent first calls build it once. A failed build is retried by the next call.
func (r *Registry) Get(ctx context.Context, name string) (*Producer, error) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	base := slices.Clone(r.base)
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	entry.init.Lock()
	defer entry.init.Unlock()

	if entry.instance != nil {
		return entry.instance, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := entry.cfg
	for _, fn := range base {
		cfg = fn(cfg)
	}
	instance, err := entry.constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("build producer %s: %w", name, err)
	}
	entry.instance = instance
	return instance, nil
}

// Unregister removes name, closing its producer when it was built.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	// Waits for a build in progress so its producer is not leaked
	entry.init.Lock()
	defer entry.init.Unlock()
	if entry.instance == nil {
		return nil
	}
	return entry.instance.Close(ctx)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// CloseAll flushes and closes every built producer. Registrations are kept, so a
// later Get builds a fresh producer.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*registration, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}
	r.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		entry.init.Lock()
		if entry.instance != nil {
			errs = append(errs, entry.instance.Close(ctx))
			entry.instance = nil
		}
		entry.init.Unlock()
	}
	return errors.Join(errs...)
}
