package producer

import (
	"context"

	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/observability"
	"github.com/aalemi-dev/kafka-workers/tracer"
)

// FXModule provides the producer registry and closes every built producer when the
// app stops.
var FXModule = fx.Module("producer",
	fx.Provide(NewRegistryWithDI),
	fx.Invoke(RegisterRegistryLifecycle),
)

// RegistryParams groups the dependencies shared by every registered producer.
type RegistryParams struct {
	fx.In

	// Factory is provided by kafka.FXModule. Without it each producer opens its own.
	Factory kafka.Factory `optional:"true"`

	Tracer   tracer.Tracer          `optional:"true"`
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewRegistryWithDI returns a registry that fills unset producer dependencies from
// the container. Dependencies set on a registered Config win.
//
// Parameters:
//   - params: The optional shared dependencies
//
// Returns:
//   - *Registry: An empty registry
func NewRegistryWithDI(params RegistryParams) *Registry {
	return NewRegistry().WithDefaults(func(cfg Config) Config {
		if cfg.Factory == nil {
			cfg.Factory = params.Factory
		}
		if cfg.Tracer == nil {
			cfg.Tracer = params.Tracer
		}
		if cfg.Logger == nil {
			cfg.Logger = params.Logger
		}
		if cfg.Observer == nil {
			cfg.Observer = params.Observer
		}
		return cfg
	})
}

// RegisterRegistryLifecycle closes every built producer on stop, delivering queued
// messages first. The drain ignores the stop deadline; callers that must not lose
// messages to fx's stop timeout call CloseAll before stopping the app.
func RegisterRegistryLifecycle(lc fx.Lifecycle, registry *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return registry.CloseAll(context.WithoutCancel(ctx))
		},
	})
}
