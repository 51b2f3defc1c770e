package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/metrics"
	"github.com/aalemi-dev/kafka-workers/tracer"
	"github.com/aalemi-dev/kafka-workers/worker"
)

// EnvPrefix prefixes every environment variable read by Load, for example
// KAFKA_WORKERS_BROKER_URL or KAFKA_WORKERS_METRICS_SYSTEM_ADDRESS.
const EnvPrefix = "KAFKA_WORKERS"

// keyDelimiter separates nested config keys. Kafka settings contain dots, so the
// default viper delimiter would split them.
const keyDelimiter = "::"

// Defaults applied by Load.
const (
	DefaultServiceName = "kafka-workers"

	// DefaultShutdownTimeout is the stop deadline when ShutdownTimeout is unset.
	DefaultShutdownTimeout = 30 * time.Second
)

// Config is the process configuration shared by every worker.
//
// Example YAML:
//
//	broker_url: localhost:9092
//	schema_registry_url: http://localhost:8081
//	consumer_group_prefix: staging-
//	workers:
//	  orders:
//	    max_attempts: 5
//	    settings:
//	      auto.offset.reset: latest
type Config struct {
	// BrokerURL becomes bootstrap.servers of every client
	BrokerURL string `mapstructure:"broker_url"`

	// SchemaRegistryURL is used by workers and producers configured with schemas
	SchemaRegistryURL string `mapstructure:"schema_registry_url"`

	// ConsumerGroupPrefix plus the worker name is the consumer group of workers
	// that set none
	ConsumerGroupPrefix string `mapstructure:"consumer_group_prefix"`

	// LogLevel is one of debug, info, warning and error
	LogLevel string `mapstructure:"log_level"`

	// ServiceName labels logs, metrics and traces
	ServiceName string `mapstructure:"service_name"`

	// ShutdownTimeout is how long workers get to stop after a signal before they
	// are cancelled. It also bounds the fx stop hooks, which run after producers
	// were drained.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Metrics configures the Prometheus endpoint
	Metrics metrics.Config `mapstructure:"metrics"`

	// Tracing configures the OpenTelemetry exporter
	Tracing tracer.Config `mapstructure:"tracing"`

	// Workers holds per-worker overrides keyed by lower-cased registration name.
	Workers map[string]WorkerConfig `mapstructure:"workers"`
}

// WorkerConfig overrides the class defaults of one registered worker.
// Zero fields keep the class default.
type WorkerConfig struct {
	// Settings are merged key by key over the class settings
	Settings map[string]any `mapstructure:"settings"`

	MaxAttempts int           `mapstructure:"max_attempts"`
	SleepTime   time.Duration `mapstructure:"sleep_time"`

	// ConsumerGroup replaces the class group
	ConsumerGroup string `mapstructure:"consumer_group"`

	// CommitPolicy is "auto" or "on_complete"
	CommitPolicy string `mapstructure:"commit_policy"`
}

// Spec returns the override as a worker spec.
func (w WorkerConfig) Spec() worker.Spec {
	return worker.Spec{
		Settings:      w.Settings,
		MaxAttempts:   w.MaxAttempts,
		SleepTime:     w.SleepTime,
		ConsumerGroup: w.ConsumerGroup,
		CommitPolicy:  worker.CommitPolicy(w.CommitPolicy),
	}
}

// Worker returns the override for name. Names are matched case-insensitively since
// config keys are lower-cased on load.
func (c *Config) Worker(name string) (WorkerConfig, bool) {
	w, ok := c.Workers[strings.ToLower(name)]
	return w, ok
}

func (c *Config) loggerConfig() logger.Config {
	return logger.Config{
		Level:         c.LogLevel,
		ServiceName:   c.ServiceName,
		EnableTracing: true,
	}
}

func (c *Config) metricsConfig() metrics.Config {
	cfg := c.Metrics
	if cfg.ServiceName == "" {
		cfg.ServiceName = c.ServiceName
	}
	return cfg
}

func (c *Config) tracerConfig() tracer.Config {
	cfg := c.Tracing
	if cfg.ServiceName == "" {
		cfg.ServiceName = c.ServiceName
	}
	return cfg
}

// Load reads the config file at path, or workers.yaml from the working directory or
// $HOME/.config when path is empty, and overlays KAFKA_WORKERS_* environment
// variables. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("workers")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	key := func(parts ...string) string { return strings.Join(parts, keyDelimiter) }

	v.SetDefault("broker_url", "")
	v.SetDefault("schema_registry_url", "")
	v.SetDefault("consumer_group_prefix", "")
	v.SetDefault("log_level", logger.Info)
	v.SetDefault("service_name", DefaultServiceName)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault(key("metrics", "system_address"), metrics.DefaultSystemMetricsAddress)
	v.SetDefault(key("metrics", "application_address"), metrics.DefaultApplicationMetricsAddress)
	v.SetDefault(key("metrics", "service_name"), "")
	v.SetDefault(key("metrics", "namespace"), metrics.DefaultNamespace)

	v.SetDefault(key("tracing", "service_name"), "")
	v.SetDefault(key("tracing", "app_env"), "")
	v.SetDefault(key("tracing", "enable_export"), false)
}
