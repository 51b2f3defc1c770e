package schema_registry

import (
	"context"

	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// FXModule provides a shared *Client and the Registry interface. Workers build their
// own clients; the shared one serves process-level tasks such as schema updates.
//
//	app := fx.New(
//	    schema_registry.FXModule,
//	    fx.Provide(func() schema_registry.Config {
//	        return schema_registry.Config{URL: "http://localhost:8081"}
//	    }),
//	)
var FXModule = fx.Module("schema_registry",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			func(c *Client) Registry { return c },
			fx.As(new(Registry)),
		),
	),
	fx.Invoke(RegisterSchemaRegistryLifecycle),
)

// SchemaRegistryParams groups the dependencies needed to create a client.
type SchemaRegistryParams struct {
	fx.In

	// Config is provided by the application, usually decoded from its config file
	Config Config

	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates a client from injected dependencies.
//
// Parameters:
//   - params: The client config and optional logger and observer
//
// Returns:
//   - *Client: The client, also provided as Registry
//   - error: When the config is invalid
func NewClientWithDI(params SchemaRegistryParams) (*Client, error) {
	client, err := NewClient(params.Config)
	if err != nil {
		return nil, err
	}

	if params.Logger != nil {
		client.logger = params.Logger
	}
	if params.Observer != nil {
		client.observer = params.Observer
	}

	return client, nil
}

// SchemaRegistryLifecycleParams groups the dependencies for lifecycle management.
type SchemaRegistryLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle

	// Client is the instance provided by NewClientWithDI
	Client *Client
}

// RegisterSchemaRegistryLifecycle logs client start and releases idle connections on stop.
func RegisterSchemaRegistryLifecycle(params SchemaRegistryLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			params.Client.logInfo(ctx, "schema registry client initialized", map[string]interface{}{
				"url": params.Client.url,
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			params.Client.httpClient.CloseIdleConnections()
			return nil
		},
	})
}
