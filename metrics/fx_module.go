package metrics

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/observability"
)

// FXModule provides *Metrics, MetricsCollector, *OperationObserver and the
// observability.Observer interface, and runs both metrics servers for the lifetime
// of the application.
//
// Requires a metrics.Config and a *logger.LoggerClient in the container.
//
//	app := fx.New(
//	    logger.FXModule,
//	    metrics.FXModule,
//	    fx.Supply(logger.Config{Level: logger.Info}),
//	    fx.Supply(metrics.Config{ServiceName: "workers"}),
//	)
var FXModule = fx.Module("metrics",
	fx.Provide(
		NewMetrics,
		fx.Annotate(
			func(m *Metrics) MetricsCollector { return m },
			fx.As(new(MetricsCollector)),
		),
		NewOperationObserver,
		fx.Annotate(
			func(o *OperationObserver) observability.Observer { return o },
			fx.As(new(observability.Observer)),
		),
	),
	fx.Invoke(RegisterMetricsLifecycle),
)

// RegisterMetricsLifecycle starts the enabled metrics servers on start and shuts them
// down on stop.
func RegisterMetricsLifecycle(lc fx.Lifecycle, m *Metrics, log *logger.LoggerClient) {
	servers := map[string]*http.Server{
		"system":      m.SystemServer,
		"application": m.ApplicationServer,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for kind, srv := range servers {
				if srv == nil {
					continue
				}
				go func(kind string, srv *http.Server) {
					log.Info("starting metrics server", nil, map[string]interface{}{
						"endpoint": kind,
						"address":  srv.Addr,
					})
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("metrics server failed", err, map[string]interface{}{"endpoint": kind})
					}
				}(kind, srv)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for kind, srv := range servers {
				if srv == nil {
					continue
				}
				if err := srv.Shutdown(ctx); err != nil {
					log.Error("metrics server shutdown failed", err, map[string]interface{}{"endpoint": kind})
				}
			}
			return nil
		},
	})
}
