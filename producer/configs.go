package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/observability"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/tracer"
)

// BackoffStrategy selects how the wait between retries grows.
type BackoffStrategy string

const (
	// BackoffLinear waits BackoffBase, then twice as long, then three times.
	BackoffLinear BackoffStrategy = "linear"

	// BackoffExponential doubles the wait after every retry, with jitter.
	BackoffExponential BackoffStrategy = "exponential"
)

// Defaults applied when a Config field is zero.
const (
	DefaultQueueSize      = 100000
	DefaultEnqueueTimeout = 250 * time.Millisecond

	// DefaultLinger keeps the backend close to flushing every batch it is handed.
	DefaultLinger = time.Millisecond

	DefaultNumRetryAttempts = 3
	DefaultBackoff          = BackoffExponential
	DefaultBackoffBase      = 100 * time.Millisecond

	// DefaultBatchSize matches batch.num.messages of the client defaults.
	DefaultBatchSize = kafka.DefaultBatchSize
)

// Config describes a producer.
//
// Only Topic is required. Broker and registry URLs may come from the framework
// settings instead.
//
// Example:
//
//	cfg := producer.Config{
//	    Topic:       "orders",
//	    ValueSchema: orderSchema,
//	    BrokerURL:   "localhost:9092",
//	    Backoff:     producer.BackoffLinear,
//	}
type Config struct {
	// Name identifies the producer in logs and metrics and is sent as client.id.
	// Defaults to the topic.
	Name string `mapstructure:"name"`

	// Topic every message is sent to
	Topic string `mapstructure:"topic"`

	// HasKey requires a key on every message.
	HasKey bool `mapstructure:"has_key"`

	// KeySchema and ValueSchema are raw Avro schemas. A message part without a
	// schema is sent as raw bytes.
	KeySchema   string `mapstructure:"key_schema"`
	ValueSchema string `mapstructure:"value_schema"`

	// KeySubject and ValueSubject default to "<topic>-key" and "<topic>-value".
	KeySubject   string `mapstructure:"key_subject"`
	ValueSubject string `mapstructure:"value_subject"`

	// Sync makes every send wait for its delivery report. Sends are asynchronous by
	// default.
	Sync bool `mapstructure:"sync"`

	// Partitioner picks the partition of each message. Defaults to
	// kafka.RandomPartitioner.
	Partitioner kafka.Partitioner `mapstructure:"-"`

	// QueueSize bounds the number of messages waiting for delivery.
	QueueSize int `mapstructure:"max_queued_messages"`

	// EnqueueTimeout bounds how long a send waits for queue space before failing
	// with kafka.ErrQueueFull.
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`

	// NumRetryAttempts bounds retries of a full queue and of transient write
	// errors. A negative value disables retries.
	NumRetryAttempts int `mapstructure:"num_retry_attempts"`

	// Linger is how long the backend waits to fill a partial batch, sent as
	// linger.ms. The delivery goroutine already batches what is queued and writes one
	// batch at a time, so a long linger delays every write that follows. Defaults to
	// DefaultLinger.
	Linger time.Duration `mapstructure:"linger"`

	// Backoff selects the retry wait strategy. Defaults to DefaultBackoff.
	Backoff BackoffStrategy `mapstructure:"backoff"`

	// BackoffBase is the first retry wait. Defaults to DefaultBackoffBase.
	BackoffBase time.Duration `mapstructure:"retry_backoff"`

	// BatchSize bounds how many queued messages are written in one call.
	BatchSize int `mapstructure:"batch_size"`

	// Settings overlay the client settings through kafka.MergeSettings.
	Settings kafka.Settings `mapstructure:"settings"`

	// BrokerURL fills bootstrap.servers when Settings leave it unset
	BrokerURL string `mapstructure:"broker_url"`

	// SchemaRegistryURL is used when Registry is nil and a schema is configured
	SchemaRegistryURL string `mapstructure:"schema_registry_url"`

	// Factory opens the backend. Defaults to kafka.NewClientFactory().
	Factory kafka.Factory `mapstructure:"-"`

	// Registry resolves subjects and schema IDs. It is shared when the launcher
	// provides one.
	Registry schema_registry.Registry `mapstructure:"-"`

	// Tracer, Logger and Observer are optional.
	Tracer   tracer.Tracer          `mapstructure:"-"`
	Logger   Logger                 `mapstructure:"-"`
	Observer observability.Observer `mapstructure:"-"`
}

// Logger matches the context-aware methods of logger.LoggerClient.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// HashedPartitionProducer returns cfg keyed and partitioned by key hash, so every
// message with the same key lands on the same partition.
func HashedPartitionProducer(cfg Config) Config {
	cfg.HasKey = true
	cfg.Partitioner = kafka.HashPartitioner{}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = c.Topic
	}
	if c.KeySubject == "" {
		c.KeySubject = c.Topic + "-key"
	}
	if c.ValueSubject == "" {
		c.ValueSubject = c.Topic + "-value"
	}
	if c.Partitioner == nil {
		c.Partitioner = kafka.RandomPartitioner{}
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if c.NumRetryAttempts == 0 {
		c.NumRetryAttempts = DefaultNumRetryAttempts
	}
	if c.Linger <= 0 {
		c.Linger = DefaultLinger
	}
	if c.Backoff == "" {
		c.Backoff = DefaultBackoff
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Factory == nil {
		c.Factory = kafka.NewClientFactory().WithObserver(c.Observer).WithLogger(c.Logger)
	}
	return c
}

func (c Config) validate() error {
	if c.Topic == "" {
		return fmt.Errorf("%w: topic name", ErrMissingConfig)
	}
	if c.Backoff != BackoffLinear && c.Backoff != BackoffExponential {
		return fmt.Errorf("%w: unknown backoff %q", ErrMissingConfig, c.Backoff)
	}
	if (c.KeySchema != "" || c.ValueSchema != "") && c.Registry == nil && c.SchemaRegistryURL == "" {
		return fmt.Errorf("%w: schema registry", ErrMissingConfig)
	}
	return nil
}

// clientSettings builds the broker settings: the framework defaults with
// c.Settings merged over them.
func (c Config) clientSettings() kafka.Settings {
	initial := kafka.Settings{
		"client.id":             c.Name,
		"linger.ms":             max(1, int(c.Linger/time.Millisecond)),
		"request.required.acks": kafka.RequireOne,
		"request.timeout.ms":    5000,
		"message.max.bytes":     1000012,
		"batch.num.messages":    c.BatchSize,
	}
	if c.BrokerURL != "" {
		initial["bootstrap.servers"] = c.BrokerURL
	}
	if c.SchemaRegistryURL != "" {
		initial["schema.registry.url"] = c.SchemaRegistryURL
	}
	return kafka.MergeSettings(initial, c.Settings)
}

// newBackoff returns a fresh retry policy bounded by NumRetryAttempts.
func (c Config) newBackoff(ctx context.Context) backoff.BackOff {
	var policy backoff.BackOff
	switch c.Backoff {
	case BackoffLinear:
		policy = &linearBackOff{step: c.BackoffBase}
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.BackoffBase
		exp.MaxElapsedTime = 0
		policy = exp
	}

	retries := c.NumRetryAttempts
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx) //nolint:gosec
}

// linearBackOff waits step, 2*step, 3*step and so on.
type linearBackOff struct {
	step time.Duration
	n    int
}

// NextBackOff implements backoff.BackOff.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
