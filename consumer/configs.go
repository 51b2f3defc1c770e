package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/observability"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/tracer"
	"github.com/aalemi-dev/kafka-workers/worker"
)

// StartPosition selects where a worker starts reading after it subscribes.
type StartPosition int

const (
	// StartCommitted resumes from the group's committed offsets.
	StartCommitted StartPosition = iota

	// StartBeginning moves every owned partition to its first retained offset.
	StartBeginning

	// StartEnd moves every owned partition to its high watermark.
	StartEnd

	// StartTimestamp starts at the first offset at or after Config.StartTime.
	StartTimestamp
)

// Defaults applied when a Config field is zero.
const (
	DefaultPollTimeout = 100 * time.Millisecond

	// DefaultAutoOffsetReset applies to partitions of a group without a committed
	// offset.
	DefaultAutoOffsetReset = "earliest"

	// DefaultSessionTimeoutMs and DefaultHeartbeatInterval are in milliseconds, like
	// the client settings they fill.
	DefaultSessionTimeoutMs  = 10000
	DefaultHeartbeatInterval = 1000

	// DefaultTimestampField is normalized when Normalization.TimestampFields is nil.
	DefaultTimestampField = "timestamp"

	consumerNamePrefix = "kafka-workers-"
)

// Config describes a consumer worker class. Every instance of the class shares it
// and builds its own backend from it on each attempt.
//
// Only Spec.Topic, Handler and a broker address are required; everything else
// falls back to the defaults above. Use StartAtBeginning, StartAtEnd or StartAt to
// select a start position.
//
// Example:
//
//	cfg := consumer.StartAtBeginning(consumer.Config{
//		Spec:              worker.Spec{Name: "orders", Topic: "orders"},
//		Handler:           consumer.HandlerFunc(handleOrder),
//		BrokerURL:         "localhost:9092",
//		SchemaRegistryURL: "http://localhost:8081",
//	})
//	registry.Register("orders", consumer.NewClass(cfg), 2)
type Config struct {
	// Spec holds the class defaults. Spec.Topic is required; Spec.ConsumerGroup
	// overrides ConsumerName as the group id; Spec.Settings overlay the client
	// settings through kafka.MergeSettings.
	Spec worker.Spec

	// Handler receives every decoded message. It is required.
	Handler Handler

	// Normalization converts record fields before the handler sees them. A nil
	// TimestampFields normalizes DefaultTimestampField; an empty non-nil slice
	// turns timestamp conversion off.
	Normalization Normalization

	// StartPosition applies on every Setup, after the subscribe.
	StartPosition StartPosition

	// StartTime is the target of StartTimestamp. It is required with it.
	StartTime time.Time

	// PollTimeout bounds each poll. Defaults to DefaultPollTimeout.
	PollTimeout time.Duration

	// SyncCommit commits offsets synchronously. Commits are asynchronous by default.
	SyncCommit bool

	// AutoOffsetReset applies when the group has no committed offset. Defaults to
	// DefaultAutoOffsetReset.
	AutoOffsetReset string

	// ConsumerName is the default group id. A random name is generated when both it
	// and Spec.ConsumerGroup are empty.
	ConsumerName string

	// BrokerURL becomes bootstrap.servers unless Spec.Settings sets it.
	BrokerURL string

	// SchemaRegistryURL becomes schema.registry.url unless Spec.Settings sets it.
	SchemaRegistryURL string

	// Factory opens the broker backend. Defaults to kafka.NewClientFactory().
	Factory kafka.Factory

	// Registry decodes values. When nil a client is built from SchemaRegistryURL; when
	// that is empty too, values are handed over as raw bytes.
	Registry schema_registry.Registry

	// Tracer opens one span per dispatched message. Optional.
	Tracer tracer.Tracer

	// Logger receives lifecycle and failure logs. Optional.
	Logger Logger

	// Observer receives broker and schema registry operation events. Optional.
	Observer observability.Observer
}

// Logger matches the context-aware methods of logger.LoggerClient.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = DefaultAutoOffsetReset
	}
	if c.ConsumerName == "" {
		c.ConsumerName = RandomConsumerName()
	}
	if c.Normalization.TimestampFields == nil {
		c.Normalization.TimestampFields = []string{DefaultTimestampField}
	}
	if c.Factory == nil {
		c.Factory = kafka.NewClientFactory().WithObserver(c.Observer).WithLogger(c.Logger)
	}
	return c
}

// RandomConsumerName returns a unique group id.
func RandomConsumerName() string {
	return consumerNamePrefix + uuid.NewString()
}

// clientSettings builds the broker settings for spec: the framework defaults with
// spec.Settings merged over them.
func (c Config) clientSettings(spec worker.Spec) kafka.Settings {
	groupID := spec.ConsumerGroup
	if groupID == "" {
		groupID = c.ConsumerName
	}

	initial := kafka.Settings{
		"group.id":              groupID,
		kafka.TopicConfigKey:    map[string]any{"auto.offset.reset": c.AutoOffsetReset},
		"enable.auto.commit":    false,
		"session.timeout.ms":    DefaultSessionTimeoutMs,
		"heartbeat.interval.ms": DefaultHeartbeatInterval,
	}
	if c.BrokerURL != "" {
		initial["bootstrap.servers"] = c.BrokerURL
	}
	if c.SchemaRegistryURL != "" {
		initial["schema.registry.url"] = c.SchemaRegistryURL
	}
	return kafka.MergeSettings(initial, spec.Settings)
}

func (c Config) validate(spec worker.Spec, settings kafka.Settings) error {
	if spec.Topic == "" {
		return fmt.Errorf("%w: topic name", ErrMissingConfig)
	}
	if c.Handler == nil {
		return fmt.Errorf("%w: handler", ErrMissingConfig)
	}
	if settings.String("bootstrap.servers") == "" {
		return fmt.Errorf("%w: bootstrap.servers", ErrMissingConfig)
	}
	if c.StartPosition == StartTimestamp && c.StartTime.IsZero() {
		return fmt.Errorf("%w: start time", ErrMissingConfig)
	}
	return nil
}

// StartAtBeginning returns cfg set to read every partition from its first offset on
// every start, ignoring committed offsets.
func StartAtBeginning(cfg Config) Config {
	cfg.StartPosition = StartBeginning
	cfg.AutoOffsetReset = "earliest"
	return cfg
}

// StartAtEnd returns cfg set to skip to the end of every partition on every start.
func StartAtEnd(cfg Config) Config {
	cfg.StartPosition = StartEnd
	cfg.AutoOffsetReset = "latest"
	return cfg
}

// StartAt returns cfg set to start from the first message at or after t.
func StartAt(cfg Config, t time.Time) Config {
	cfg.StartPosition = StartTimestamp
	cfg.StartTime = t
	return cfg
}
