package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Launcher runs a cohort of registered workers and joins them.
type Launcher struct {
	registry *Registry
	opts     options

	// overrides hold per-name specs merged over the class defaults at spawn time
	mu        sync.Mutex
	overrides map[string]Spec
}

// NewLauncher returns a launcher over registry. Every supervisor it spawns shares the
// launcher's shutdown flag.
//
// Parameters:
//   - registry: The workers to choose from. Run freezes it.
//   - opts: Options passed on to every supervisor
//
// Returns:
//   - *Launcher: A launcher with no running workers
//
// Example:
//
//	registry := worker.NewRegistry()
//	_ = registry.Register("orders", consumer.Class(cfg), 2)
//
//	launcher := worker.NewLauncher(registry, worker.WithLogger(log))
//	go func() {
//	    <-signals
//	    launcher.Stop()
//	}()
//	err := launcher.Run(ctx)
func NewLauncher(registry *Registry, opts ...Option) *Launcher {
	return &Launcher{
		registry:  registry,
		opts:      buildOptions(opts),
		overrides: make(map[string]Spec),
	}
}

// Override merges spec over the class defaults of every instance named name.
func (l *Launcher) Override(name string, spec Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[name] = l.overrides[name].Merge(spec)
}

// Shutdown returns the flag shared by the cohort.
func (l *Launcher) Shutdown() *Shutdown {
	return l.opts.shutdown
}

// Run freezes the registry, starts one supervisor per selected instance and blocks
// until all of them stop. With no names every registered worker runs. The returned
// error joins the failure of every worker that stopped in error.
func (l *Launcher) Run(ctx context.Context, names ...string) error {
	l.registry.Freeze()

	regs, err := l.registry.Select(names...)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		logWarn(l.opts.logger, ctx, "No workers registered", nil, nil)
		return nil
	}

	// Group.Go never cancels the others; one failed worker leaves the rest running
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []error
	)
	for _, reg := range regs {
		supervisor := l.supervisor(reg)
		g.Go(func() error {
			if err := supervisor.Run(ctx); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	logInfo(l.opts.logger, ctx, "Workers launched", map[string]interface{}{
		"count": len(regs),
		"names": l.names(regs),
	})

	if err := g.Wait(); err != nil {
		return errors.Join(failures...)
	}
	return nil
}

// Stop asks every running worker to stop after its current unit of work.
func (l *Launcher) Stop() {
	l.opts.shutdown.Trigger()
}

// supervisor builds the supervisor of one instance. The instance name defaults to
// the registered name.
func (l *Launcher) supervisor(reg Registration) *Supervisor {
	l.mu.Lock()
	override := l.overrides[reg.Name]
	l.mu.Unlock()

	spec := reg.Class.Defaults.Merge(override)
	if spec.Name == "" {
		spec.Name = reg.Name
	}

	return NewSupervisor(spec, reg.Class,
		WithShutdown(l.opts.shutdown),
		WithReporter(l.opts.reporter),
		WithLogger(l.opts.logger),
		WithObserver(l.opts.observer),
	)
}

// names returns the distinct names of regs in order.
func (l *Launcher) names(regs []Registration) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, reg := range regs {
		if _, ok := seen[reg.Name]; !ok {
			seen[reg.Name] = struct{}{}
			out = append(out, reg.Name)
		}
	}
	return out
}
