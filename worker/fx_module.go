package worker

import (
	"context"

	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// FXModule provides the worker registry, the shared shutdown flag and a launcher.
// Stopping the app triggers the shutdown flag.
var FXModule = fx.Module("worker",
	fx.Provide(
		NewRegistry,
		NewShutdown,
		NewLauncherWithDI,
	),
	fx.Invoke(RegisterLauncherLifecycle),
)

// LauncherParams groups the dependencies of the launcher.
type LauncherParams struct {
	fx.In

	Registry *Registry

	// Shutdown is shared with everything that can stop the cohort
	Shutdown *Shutdown

	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
	// Reporter defaults to a LogReporter on Logger
	Reporter Reporter `optional:"true"`
}

// NewLauncherWithDI builds a launcher from injected dependencies.
//
// Parameters:
//   - params: The registry, the shutdown flag and optional logging hooks
//
// Returns:
//   - *Launcher: A launcher that has not started any worker
func NewLauncherWithDI(params LauncherParams) *Launcher {
	opts := []Option{WithShutdown(params.Shutdown)}
	if params.Logger != nil {
		opts = append(opts, WithLogger(params.Logger))
	}
	if params.Observer != nil {
		opts = append(opts, WithObserver(params.Observer))
	}
	if params.Reporter != nil {
		opts = append(opts, WithReporter(params.Reporter))
	}
	return NewLauncher(params.Registry, opts...)
}

// RegisterLauncherLifecycle stops the cohort when the app stops.
func RegisterLauncherLifecycle(lc fx.Lifecycle, launcher *Launcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			launcher.Stop()
			return nil
		},
	})
}
