package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/observability"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/worker"
)

// Worker consumes one topic. It implements worker.Worker; the supervisor builds one
// per attempt through the class returned by NewClass.
type Worker struct {
	// cfg is the class config with defaults applied
	cfg Config

	// spec is the merged spec of this instance
	spec worker.Spec

	// attempt starts at 1 and grows with every respawn
	attempt int

	// settings are the merged client settings the backend is opened with
	settings kafka.Settings

	// consumer and codec are opened in Setup and released in Teardown
	consumer kafka.Consumer
	codec    *schema_registry.Codec

	// lastMessage is the most recent message polled, for diagnostics
	lastMessage *kafka.Message
}

var _ worker.Worker = (*Worker)(nil)

// NewClass returns the worker class for cfg. Defaults that must hold across attempts,
// such as a generated consumer name, are resolved once here.
func NewClass(cfg Config) worker.Class {
	cfg = cfg.withDefaults()
	return worker.Class{
		Defaults: cfg.Spec,
		New: func(spec worker.Spec, attempt int) (worker.Worker, error) {
			return New(cfg, spec, attempt), nil
		},
	}
}

// New returns the worker for one attempt. Nothing is opened until Setup.
//
// Parameters:
//   - cfg: The class config
//   - spec: The instance spec, already merged with the class defaults
//   - attempt: The attempt number, starting at 1
func New(cfg Config, spec worker.Spec, attempt int) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:      cfg,
		spec:     spec,
		attempt:  attempt,
		settings: cfg.clientSettings(spec),
	}
}

// Settings returns the merged client settings: the framework defaults, then the
// config's broker and registry URLs, then spec.Settings.
func (w *Worker) Settings() kafka.Settings {
	return w.settings
}

// Setup opens the backend, subscribes to the topic and applies the start position.
// Missing configuration is terminal.
//
// A start position other than StartCommitted is applied to this instance's share
// of the group only, so the instances of one registration never reset each
// other's partitions.
func (w *Worker) Setup(ctx context.Context) error {
	if err := w.cfg.validate(w.spec, w.settings); err != nil {
		return worker.Terminal(err)
	}

	// The codec is built first so a bad registry URL fails before any broker dial
	codec, err := w.newCodec()
	if err != nil {
		return worker.Terminal(err)
	}
	w.codec = codec

	consumer, err := w.cfg.Factory.NewConsumer(w.settings)
	if err != nil {
		if errors.Is(err, kafka.ErrInvalidConfig) {
			return worker.Terminal(err)
		}
		return fmt.Errorf("open consumer: %w", err)
	}
	w.consumer = consumer

	if err := consumer.Subscribe(ctx, []string{w.spec.Topic}); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.spec.Topic, err)
	}

	switch w.cfg.StartPosition {
	case StartBeginning:
		err = w.ResetOffsets(ctx, Beginning)
	case StartEnd:
		err = w.ResetOffsets(ctx, End)
	case StartTimestamp:
		err = w.ResetOffsets(ctx, AtTime(w.cfg.StartTime))
	}
	if err != nil {
		return err
	}

	w.logInfo(ctx, "Consumer subscribed", nil)
	return nil
}

// newCodec returns nil when neither a registry nor a registry URL is configured.
func (w *Worker) newCodec() (*schema_registry.Codec, error) {
	registry := w.cfg.Registry
	if registry == nil {
		url := w.settings.String("schema.registry.url")
		if url == "" {
			return nil, nil
		}
		client, err := schema_registry.NewClient(schema_registry.Config{URL: url})
		if err != nil {
			return nil, fmt.Errorf("%w: schema registry: %v", ErrMissingConfig, err)
		}
		registry = client.WithObserver(w.cfg.Observer).WithLogger(w.cfg.Logger)
	}
	return schema_registry.NewCodec(registry).WithObserver(w.cfg.Observer), nil
}

// Teardown closes the backend.
func (w *Worker) Teardown(ctx context.Context) error {
	if w.consumer == nil {
		return nil
	}
	err := w.consumer.Close()
	w.consumer = nil
	return err
}

// Poll fetches the next event, or nil when none arrived within the poll timeout.
func (w *Worker) Poll(ctx context.Context) *kafka.Event {
	event := w.consumer.Poll(ctx, w.cfg.PollTimeout)
	if event != nil && event.Kind == kafka.EventMessage {
		w.lastMessage = event.Message
	}
	return event
}

// Handle processes one poll. Transport errors are returned as *kafka.FatalError.
//
// An empty poll sleeps for SleepTime, interrupted by shutdown. A consumed message
// is committed right away under CommitOnComplete; a failed one is never committed.
func (w *Worker) Handle(ctx context.Context) error {
	event := w.Poll(ctx)
	if event == nil {
		worker.Wait(ctx, w.spec.SleepTime)
		return nil
	}

	switch event.Kind {
	case kafka.EventPartitionEOF:
		return w.partitionEOF(ctx, event.Partition)
	case kafka.EventError:
		return &kafka.FatalError{Err: event.Err}
	case kafka.EventMessage:
		if err := w.consume(ctx, event.Message); err != nil {
			return err
		}
		if w.spec.CommitPolicy == worker.CommitOnComplete {
			return w.Commit(ctx)
		}
		return nil
	default:
		return nil
	}
}

// partitionEOF forwards the event when the handler asks for it.
func (w *Worker) partitionEOF(ctx context.Context, tp kafka.TopicPartition) error {
	handler, ok := w.cfg.Handler.(PartitionEOFHandler)
	if !ok {
		return nil
	}
	return handler.PartitionEOF(ctx, PartitionEnd{Topic: tp.Topic, Partition: tp.Partition, Offset: tp.Offset})
}

// consume decodes, normalizes and dispatches raw under a "kafka:consume" span.
func (w *Worker) consume(ctx context.Context, raw *kafka.Message) (err error) {
	start := time.Now()

	msg, err := w.decode(ctx, raw)
	if err != nil {
		w.observe("consume", raw, time.Since(start), err)
		return err
	}
	if record := msg.Record(); record != nil && !w.cfg.Normalization.empty() {
		w.cfg.Normalization.Apply(record)
	}

	if w.cfg.Tracer != nil {
		ctx = w.cfg.Tracer.SetCarrierOnContext(ctx, msg.carrier())
		spanCtx, span := w.cfg.Tracer.StartSpan(ctx, "kafka:consume")
		attrs := map[string]interface{}{
			"messaging.system":           "kafka",
			"messaging.destination.name": raw.Topic,
			"messaging.kafka.partition":  raw.Partition,
			"messaging.kafka.offset":     raw.Offset,
		}
		if len(raw.Key) > 0 {
			attrs["key"] = string(raw.Key)
		}
		span.SetAttributes(attrs)
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
		ctx = spanCtx
	}

	err = w.cfg.Handler.ConsumeMessage(ctx, msg)
	w.observe("consume", raw, time.Since(start), err)
	return err
}

// decode decodes the value with the codec. A key is decoded only when it carries
// the schema registry framing; otherwise it stays raw.
func (w *Worker) decode(ctx context.Context, raw *kafka.Message) (*Message, error) {
	if w.codec == nil {
		return newMessage(raw, raw.Key, raw.Value, 0), nil
	}

	var value any
	schemaID := 0
	if raw.Value != nil {
		decoded, id, err := w.codec.Decode(ctx, raw.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]@%d: %w", ErrInvalidData, raw.Topic, raw.Partition, raw.Offset, err)
		}
		value, schemaID = decoded, id
	}

	var key any = raw.Key
	if _, _, err := schema_registry.DecodeSchemaID(raw.Key); err == nil {
		if decoded, _, err := w.codec.Decode(ctx, raw.Key); err == nil {
			key = decoded
		}
	}
	return newMessage(raw, key, value, schemaID), nil
}

// Commit commits the consumed offsets unless the client auto-commits. Commits are
// asynchronous unless Config.SyncCommit is set.
func (w *Worker) Commit(ctx context.Context) error {
	if w.settings.Bool("enable.auto.commit") {
		return nil
	}
	if err := w.consumer.Commit(ctx, !w.cfg.SyncCommit); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Positions returns the next offset to read for each assigned partition.
func (w *Worker) Positions(ctx context.Context) ([]kafka.TopicPartition, error) {
	return w.consumer.Positions(ctx)
}

// LastMessage returns the last message polled, or nil.
func (w *Worker) LastMessage() *kafka.Message {
	return w.lastMessage
}

// Attempt returns the attempt this instance runs, starting at 1.
func (w *Worker) Attempt() int {
	return w.attempt
}

func (w *Worker) observe(operation string, raw *kafka.Message, duration time.Duration, err error) {
	if w.cfg.Observer == nil {
		return
	}
	w.cfg.Observer.ObserveOperation(observability.OperationContext{
		Component:   "consumer",
		Operation:   operation,
		Resource:    raw.Topic,
		SubResource: strconv.Itoa(raw.Partition),
		Duration:    duration,
		Error:       err,
		Size:        int64(len(raw.Value)),
		Metadata: map[string]interface{}{
			"worker": w.spec.Name,
			"offset": raw.Offset,
		},
	})
}

func (w *Worker) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if w.cfg.Logger == nil {
		return
	}
	base := map[string]interface{}{
		"worker":   w.spec.Name,
		"topic":    w.spec.Topic,
		"group_id": w.settings.String("group.id"),
		"attempt":  w.attempt,
	}
	w.cfg.Logger.InfoWithContext(ctx, msg, nil, base, fields)
}
