package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// WriterProducer is the segmentio/kafka-go Producer. Writes are synchronous: Produce
// returns once the broker acknowledged every record or failed.
//
// The Writer groups a call's records by partition and sends each group as one
// produce request, so a partition's records succeed or fail together as long as
// they fit in one batch of batch.num.messages and message.max.bytes.
type WriterProducer struct {
	// conn supplies the transport and the metadata lookups
	conn *connection

	// writer does the batching and the produce requests
	writer *kafka.Writer

	observer observability.Observer
	logger   Logger

	// partitions caches Partitions lookups per topic
	partitionsMu sync.Mutex
	partitions   map[string][]int

	// inflight counts Produce calls that Flush and Close wait for
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewWriterProducer builds a writer from producer settings.
//
// Parameters:
//   - cfg: Decoded producer settings
//   - observer: Receives one "produce" event per call; may be nil
//   - logger: Receives kafka-go internal errors; may be nil
//
// Returns an error wrapping ErrInvalidConfig for an unknown compression codec or
// unusable TLS and SASL material. No broker is contacted here.
func NewWriterProducer(cfg ProducerSettings, observer observability.Observer, logger Logger) (*WriterProducer, error) {
	conn, err := newConnection(cfg.Brokers(), cfg.ClientID, cfg.SecuritySettings)
	if err != nil {
		return nil, err
	}

	codec, err := compressionCodec(cfg.CompressionCodec)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(conn.brokers...),
		Balancer:               recordBalancer{fallback: &kafka.RoundRobin{}},
		BatchSize:              cfg.BatchNumMessages,
		BatchTimeout:           millis(cfg.LingerMs, DefaultBatchTimeout),
		WriteTimeout:           millis(cfg.RequestTimeoutMs, DefaultWriteTimeout),
		RequiredAcks:           kafka.RequiredAcks(cfg.RequestRequiredAcks),
		AllowAutoTopicCreation: cfg.AllowTopicCreation,
		Transport:              conn.transport(),
		ErrorLogger:            createErrorLogger(logger),
	}
	// A nil codec leaves the writer uncompressed
	if codec != nil {
		writer.Compression = kafka.Compression(codec.Code())
	}
	if cfg.MessageMaxBytes > 0 {
		writer.BatchBytes = int64(cfg.MessageMaxBytes)
	}

	return &WriterProducer{
		conn:       conn,
		writer:     writer,
		observer:   observer,
		logger:     logger,
		partitions: make(map[string][]int),
	}, nil
}

// Produce writes records in order and reports each outcome. Offsets are not
// reported by the Writer, so every report carries -1.
func (p *WriterProducer) Produce(ctx context.Context, records []Record, onDelivery DeliveryFunc) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	start := time.Now()
	msgs := make([]kafka.Message, len(records))
	var size int64
	for i, rec := range records {
		msgs[i] = toKafkaMessage(rec)
		size += int64(len(rec.Value))
	}

	err := p.writer.WriteMessages(ctx, msgs...)

	// WriteErrors is indexed like msgs; any other error failed the whole call
	var writeErrs kafka.WriteErrors
	perRecord := errors.As(err, &writeErrs) && len(writeErrs) == len(records)
	for i, rec := range records {
		recErr := err
		if perRecord {
			recErr = writeErrs[i]
		}
		recErr = TranslateError(recErr)

		if onDelivery != nil {
			onDelivery(DeliveryReport{Record: rec, Partition: rec.Partition, Offset: -1, Err: recErr})
		}
	}

	err = TranslateError(err)
	observeOperation(p.observer, "produce", records[0].Topic, -1, time.Since(start), err, size)
	return err
}

// Partitions lists the partition ids of topic, cached after the first lookup.
func (p *WriterProducer) Partitions(ctx context.Context, topic string) ([]int, error) {
	p.partitionsMu.Lock()
	cached, ok := p.partitions[topic]
	p.partitionsMu.Unlock()
	if ok {
		return cached, nil
	}

	ids, err := p.conn.partitions(ctx, topic)
	if err != nil {
		return nil, err
	}

	p.partitionsMu.Lock()
	p.partitions[topic] = ids
	p.partitionsMu.Unlock()
	return ids, nil
}

// Flush waits for in-flight Produce calls. Since Produce is synchronous there is
// never anything buffered beyond them.
func (p *WriterProducer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for in-flight writes and closes the writer.
func (p *WriterProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.inflight.Wait()
	return p.writer.Close()
}

// toKafkaMessage keeps the resolved partition so recordBalancer can honour it.
func toKafkaMessage(rec Record) kafka.Message {
	headers := make([]kafka.Header, 0, len(rec.Headers))
	for _, h := range rec.Headers {
		headers = append(headers, kafka.Header{Key: h.Key, Value: h.Value})
	}
	return kafka.Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Time:      rec.Timestamp,
	}
}
