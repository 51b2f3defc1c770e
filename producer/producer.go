package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
)

// Pending is one message of a SendMessages batch. Key is ignored by unkeyed
// producers. A zero Timestamp is replaced by the send time.
type Pending struct {
	// Key is encoded with the key schema, or sent as is when it is []byte or string
	Key any

	// Value is encoded with the value schema, or sent as is when it is []byte or string
	Value any

	// Timestamp becomes the record timestamp
	Timestamp time.Time
}

// DeliveryReport is the outcome of one message.
type DeliveryReport = kafka.DeliveryReport

// Producer sends encoded messages to one topic through a bounded queue drained by a
// single delivery goroutine, so messages reach each partition in submission order.
type Producer struct {
	// cfg is the config with defaults applied
	cfg      Config
	settings kafka.Settings
	backend  kafka.Producer

	// codec is nil when neither a key nor a value schema is configured
	codec       *schema_registry.Codec
	keySchema   *schema_registry.Schema
	valueSchema *schema_registry.Schema

	// partitions of the topic, looked up on the first send and cached
	partitionsMu sync.Mutex
	partitions   []int

	deliveryMu sync.RWMutex
	onDelivery func(DeliveryReport)

	// mu guards closed against sends racing with Close on the queue.
	mu      sync.RWMutex
	closed  bool
	queue   chan *envelope
	pending *inflight
	stopped chan struct{}

	// ctx bounds retries of the delivery goroutine and is cancelled once it exits
	ctx    context.Context
	cancel context.CancelFunc
}

// envelope carries a record through the queue. result is nil for async sends.
type envelope struct {
	record kafka.Record
	result chan error
}

// New opens the backend and starts the delivery goroutine.
//
// Schemas are not registered here. The first send of each schema resolves it
// against the registry, registering it when the subject has no such version.
//
// Parameters:
//   - cfg: The producer config. Topic is required.
//
// Returns:
//   - *Producer: A running producer that must be closed with Close
//   - error: ErrMissingConfig, or an error from opening the backend
//
// Example:
//
//	p, err := producer.New(producer.Config{Topic: "orders", BrokerURL: "localhost:9092"})
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	err = p.SendMessage(ctx, nil, []byte(`{"id": 1}`))
func New(cfg Config) (*Producer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Producer{
		cfg:      cfg,
		settings: cfg.clientSettings(),
		queue:    make(chan *envelope, cfg.QueueSize),
		pending:  newInflight(),
		stopped:  make(chan struct{}),
	}

	if err := p.initSchemas(); err != nil {
		return nil, err
	}

	backend, err := cfg.Factory.NewProducer(p.settings)
	if err != nil {
		return nil, fmt.Errorf("open producer %s: %w", cfg.Name, err)
	}
	p.backend = backend

	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.deliver()

	p.logInfo(context.Background(), "Producer started", map[string]interface{}{
		"async":      !cfg.Sync,
		"queue_size": cfg.QueueSize,
	})
	return p, nil
}

// initSchemas prepares the codec and the schemas of the configured key and value.
// A missing registry URL is only an error when a schema is configured.
func (p *Producer) initSchemas() error {
	if p.cfg.KeySchema == "" && p.cfg.ValueSchema == "" {
		return nil
	}

	registry := p.cfg.Registry
	if registry == nil {
		client, err := schema_registry.NewClient(schema_registry.Config{URL: p.cfg.SchemaRegistryURL})
		if err != nil {
			return fmt.Errorf("%w: schema registry: %v", ErrMissingConfig, err)
		}
		registry = client.WithObserver(p.cfg.Observer).WithLogger(p.cfg.Logger)
	}

	p.codec = schema_registry.NewCodec(registry).WithObserver(p.cfg.Observer)
	if p.cfg.HasKey && p.cfg.KeySchema != "" {
		p.keySchema = schema_registry.NewSchema(registry, p.cfg.KeySubject, p.cfg.KeySchema)
	}
	if p.cfg.ValueSchema != "" {
		p.valueSchema = schema_registry.NewSchema(registry, p.cfg.ValueSubject, p.cfg.ValueSchema)
	}
	return nil
}

// Name returns the producer name.
func (p *Producer) Name() string { return p.cfg.Name }

// Topic returns the topic the producer writes to.
func (p *Producer) Topic() string { return p.cfg.Topic }

// HasKey reports whether messages must carry a key.
func (p *Producer) HasKey() bool { return p.cfg.HasKey }

// Settings returns the merged client settings.
func (p *Producer) Settings() kafka.Settings { return p.settings }

// KeySchema returns the key schema, or nil when keys are sent raw.
func (p *Producer) KeySchema() *schema_registry.Schema { return p.keySchema }

// ValueSchema returns the value schema, or nil when values are sent raw.
func (p *Producer) ValueSchema() *schema_registry.Schema { return p.valueSchema }

// Schemas returns the key schema, when there is one, followed by the value schema.
func (p *Producer) Schemas() []*schema_registry.Schema {
	var out []*schema_registry.Schema
	if p.keySchema != nil {
		out = append(out, p.keySchema)
	}
	if p.valueSchema != nil {
		out = append(out, p.valueSchema)
	}
	return out
}

// OnDelivery sets a callback invoked once per message with its delivery report. It
// runs on the delivery goroutine and must not block.
func (p *Producer) OnDelivery(fn func(DeliveryReport)) {
	p.deliveryMu.Lock()
	defer p.deliveryMu.Unlock()
	p.onDelivery = fn
}

// GetTimestamp returns the current time in epoch milliseconds, the unit of Kafka
// record timestamps.
func (p *Producer) GetTimestamp() int64 {
	return p.TimestampAt(time.Now())
}

// TimestampAt converts at to epoch milliseconds. A zero time yields the current time.
func (p *Producer) TimestampAt(at time.Time) int64 {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UnixMilli()
}

// SendMessage encodes and queues one message. An unkeyed producer ignores key. With
// Sync set it returns once the broker answered.
func (p *Producer) SendMessage(ctx context.Context, key, value any) error {
	return p.SendMessages(ctx, []Pending{{Key: key, Value: value}})
}

// SendMessages encodes and queues messages in order. It stops at the first message
// that cannot be encoded or queued; the messages before it are still delivered.
func (p *Producer) SendMessages(ctx context.Context, messages []Pending) error {
	var waits []chan error
	for i, msg := range messages {
		rec, err := p.record(ctx, msg)
		if err != nil {
			return errors.Join(fmt.Errorf("message %d: %w", i, err), p.await(ctx, waits))
		}

		env := &envelope{record: rec}
		if p.cfg.Sync {
			env.result = make(chan error, 1)
		}
		if err := p.enqueue(ctx, env); err != nil {
			return errors.Join(fmt.Errorf("message %d: %w", i, err), p.await(ctx, waits))
		}
		if env.result != nil {
			waits = append(waits, env.result)
		}
	}
	return p.await(ctx, waits)
}

// await waits for the delivery results of synchronous sends.
func (p *Producer) await(ctx context.Context, waits []chan error) error {
	var errs []error
	for _, result := range waits {
		select {
		case err := <-result:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// record encodes msg into a record with its partition resolved.
func (p *Producer) record(ctx context.Context, msg Pending) (kafka.Record, error) {
	var key []byte
	if p.cfg.HasKey {
		if msg.Key == nil {
			return kafka.Record{}, ErrMissingKey
		}
		encoded, err := p.encode(ctx, p.keySchema, msg.Key)
		if err != nil {
			return kafka.Record{}, fmt.Errorf("key: %w", err)
		}
		key = encoded
	} else if msg.Key != nil {
		p.logWarn(ctx, "Ignoring key on unkeyed producer", nil, nil)
	}

	value, err := p.encode(ctx, p.valueSchema, msg.Value)
	if err != nil {
		return kafka.Record{}, fmt.Errorf("value: %w", err)
	}

	partitions, err := p.topicPartitions(ctx)
	if err != nil {
		return kafka.Record{}, err
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return kafka.Record{
		Topic:     p.cfg.Topic,
		Partition: p.cfg.Partitioner.Partition(key, partitions),
		Key:       key,
		Value:     value,
		Headers:   p.headers(ctx),
		Timestamp: ts,
	}, nil
}

// encode frames v with the schema's latest ID. Without a schema only []byte,
// string and nil are accepted.
func (p *Producer) encode(ctx context.Context, schema *schema_registry.Schema, v any) ([]byte, error) {
	if schema == nil {
		switch raw := v.(type) {
		case []byte:
			return raw, nil
		case string:
			return []byte(raw), nil
		case nil:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: got %T", ErrInvalidValue, v)
		}
	}

	id, err := schema.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %s: %w", schema.Subject, err)
	}
	return p.codec.Encode(ctx, id, v)
}

// topicPartitions returns the cached partition IDs of the topic.
func (p *Producer) topicPartitions(ctx context.Context) ([]int, error) {
	p.partitionsMu.Lock()
	defer p.partitionsMu.Unlock()

	if len(p.partitions) > 0 {
		return p.partitions, nil
	}
	ids, err := p.backend.Partitions(ctx, p.cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("partitions of %s: %w", p.cfg.Topic, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("partitions of %s: %w", p.cfg.Topic, kafka.ErrPartitionNotFound)
	}
	p.partitions = ids
	return ids, nil
}

// headers carries the trace context of ctx.
func (p *Producer) headers(ctx context.Context) []kafka.Header {
	if p.cfg.Tracer == nil {
		return nil
	}
	carrier := p.cfg.Tracer.GetCarrier(ctx)
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// enqueue waits up to EnqueueTimeout for queue space, retrying a full queue with
// backoff before giving up with kafka.ErrQueueFull.
func (p *Producer) enqueue(ctx context.Context, env *envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	p.pending.add()
	err := backoff.Retry(func() error {
		timer := time.NewTimer(p.cfg.EnqueueTimeout)
		defer timer.Stop()

		select {
		case p.queue <- env:
			return nil
		case <-timer.C:
			p.observe("enqueue", 0, kafka.ErrQueueFull)
			return kafka.ErrQueueFull
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
	}, p.cfg.newBackoff(ctx))
	if err != nil {
		p.pending.done()
		return err
	}
	return nil
}

// Flush blocks until every queued message has been delivered or failed.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.pending.wait(ctx); err != nil {
		return err
	}
	return p.backend.Flush(ctx)
}

// Close stops accepting messages, delivers what is queued and closes the backend.
//
// The drain has no deadline: ctx cancellation does not drop queued messages. The wait
// ends once every message was delivered or failed, which the backend's write timeout
// and NumRetryAttempts bound when the broker is unreachable. Close is idempotent.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	// The delivery goroutine exits once the closed queue is drained
	<-p.stopped
	p.cancel()

	var errs []error
	if err := p.backend.Flush(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, err)
	}
	if err := p.backend.Close(); err != nil {
		errs = append(errs, err)
	}

	p.logInfo(context.Background(), "Producer closed", nil)
	return errors.Join(errs...)
}
