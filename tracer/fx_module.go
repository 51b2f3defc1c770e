package tracer

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *TracerClient and Tracer from a Config in the container and
// shuts the provider down when the application stops, flushing pending spans.
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClient,
		fx.Annotate(
			func(t *TracerClient) Tracer { return t },
			fx.As(new(Tracer)),
		),
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// RegisterTracerLifecycle shuts the tracer down on stop.
func RegisterTracerLifecycle(lc fx.Lifecycle, t *TracerClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return t.Shutdown(ctx)
		},
	})
}
