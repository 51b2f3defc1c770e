package launcher

import (
	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/consumer"
	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/observability"
	"github.com/aalemi-dev/kafka-workers/producer"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/tracer"
)

// Env carries the process-wide dependencies handed to a Setup function.
type Env struct {
	Config *Config
	Logger *logger.LoggerClient

	// Factory is shared by every consumer and producer of the process
	Factory kafka.Factory

	// Tracer and Observer are nil when tracing or metrics are disabled
	Tracer   tracer.Tracer
	Observer observability.Observer

	// SchemaRegistry is shared by producers built for the schemas command. It is nil
	// while workers run, since each worker then opens its own client.
	SchemaRegistry schema_registry.Registry
}

// EnvParams groups the dependencies of an Env.
type EnvParams struct {
	fx.In

	Config         *Config
	Logger         *logger.LoggerClient
	Factory        kafka.Factory
	Tracer         tracer.Tracer            `optional:"true"`
	Observer       observability.Observer   `optional:"true"`
	SchemaRegistry schema_registry.Registry `optional:"true"`
}

// NewEnv builds an Env from injected dependencies.
func NewEnv(params EnvParams) Env {
	return Env{
		Config:         params.Config,
		Logger:         params.Logger,
		Factory:        params.Factory,
		Tracer:         params.Tracer,
		Observer:       params.Observer,
		SchemaRegistry: params.SchemaRegistry,
	}
}

// Consumer returns cfg with every unset connection, telemetry and naming field filled
// from the environment. An empty consumer group becomes the group prefix followed by
// the worker name when a prefix is configured.
func (e Env) Consumer(cfg consumer.Config) consumer.Config {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = e.Config.BrokerURL
	}
	if cfg.SchemaRegistryURL == "" {
		cfg.SchemaRegistryURL = e.Config.SchemaRegistryURL
	}
	if cfg.Spec.ConsumerGroup == "" && e.Config.ConsumerGroupPrefix != "" {
		cfg.Spec.ConsumerGroup = e.Config.ConsumerGroupPrefix + cfg.Spec.Name
	}
	if cfg.Factory == nil {
		cfg.Factory = e.Factory
	}
	if cfg.Tracer == nil {
		cfg.Tracer = e.Tracer
	}
	if cfg.Logger == nil && e.Logger != nil {
		cfg.Logger = e.Logger.Named(cfg.Spec.Name)
	}
	if cfg.Observer == nil {
		cfg.Observer = e.Observer
	}
	return cfg
}

// Producer returns cfg with every unset connection and telemetry field filled from
// the environment.
func (e Env) Producer(cfg producer.Config) producer.Config {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = e.Config.BrokerURL
	}
	if cfg.SchemaRegistryURL == "" {
		cfg.SchemaRegistryURL = e.Config.SchemaRegistryURL
	}
	if cfg.Registry == nil {
		cfg.Registry = e.SchemaRegistry
	}
	if cfg.Factory == nil {
		cfg.Factory = e.Factory
	}
	if cfg.Tracer == nil {
		cfg.Tracer = e.Tracer
	}
	if cfg.Logger == nil && e.Logger != nil {
		cfg.Logger = e.Logger.Named(cfg.Name)
	}
	if cfg.Observer == nil {
		cfg.Observer = e.Observer
	}
	return cfg
}
