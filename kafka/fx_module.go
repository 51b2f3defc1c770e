package kafka

import (
	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// FXModule provides the broker backend factory. Workers open their own backends from
// it, so no connection is shared and nothing needs closing at app level.
//
//	app := fx.New(
//	    kafka.FXModule,
//	    logger.FXModule, // optional
//	)
var FXModule = fx.Module("kafka",
	fx.Provide(
		NewClientFactoryWithDI,
		fx.Annotate(
			ProvideFactory,
			fx.As(new(Factory)),
		),
	),
)

// KafkaParams groups the optional dependencies of the factory.
type KafkaParams struct {
	fx.In

	// Logger receives backend lifecycle and failure logs
	Logger Logger `optional:"true"`

	// Observer receives one event per broker operation
	Observer observability.Observer `optional:"true"`
}

// NewClientFactoryWithDI builds a ClientFactory from injected dependencies.
// Missing optional dependencies leave the factory silent.
//
// Parameters:
//   - params: The optional Logger and Observer
//
// Returns a factory whose backends share the injected logger and observer.
func NewClientFactoryWithDI(params KafkaParams) *ClientFactory {
	factory := NewClientFactory()
	if params.Logger != nil {
		factory.logger = params.Logger
	}
	if params.Observer != nil {
		factory.observer = params.Observer
	}
	return factory
}

// ProvideFactory exposes the concrete factory as the Factory interface.
func ProvideFactory(f *ClientFactory) Factory {
	return f
}
