package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// SaramaProducer is the IBM/sarama Producer, kept as an alternate backend with the
// same contract as WriterProducer. Partitions are always chosen by the caller.
type SaramaProducer struct {
	// client owns the broker connections and the metadata cache
	client sarama.Client

	// producer sends batches and waits for every acknowledgment
	producer sarama.SyncProducer

	observer observability.Observer
	logger   Logger

	// inflight counts Produce calls that Flush and Close wait for
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewSaramaProducer connects a sarama sync producer. Unlike the segmentio backend it
// dials the brokers immediately to load metadata.
//
// Parameters:
//   - cfg: Decoded producer settings
//   - observer: Receives one "produce" event per call; may be nil
//   - logger: May be nil
//
// Returns an error wrapping ErrInvalidConfig for unusable settings, or the
// translated connection error when no broker answers.
//
// Example:
//
//	cfg, _ := kafka.DecodeProducerSettings(kafka.Settings{
//		"bootstrap.servers": "localhost:9092",
//		"producer.backend":  kafka.BackendSarama,
//	})
//	producer, err := kafka.NewSaramaProducer(cfg, nil, nil)
func NewSaramaProducer(cfg ProducerSettings, observer observability.Observer, logger Logger) (*SaramaProducer, error) {
	conf, err := toSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama client: %w", TranslateError(err))
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create sync producer: %w", TranslateError(err))
	}

	return &SaramaProducer{
		client:   client,
		producer: producer,
		observer: observer,
		logger:   logger,
	}, nil
}

// toSaramaConfig converts producer settings to a sarama.Config.
func toSaramaConfig(cfg ProducerSettings) (*sarama.Config, error) {
	conf := sarama.NewConfig()
	if cfg.ClientID != "" {
		conf.ClientID = cfg.ClientID
	}

	// SyncProducer needs both channels; the partition is always resolved upstream
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true
	conf.Producer.Partitioner = sarama.NewManualPartitioner

	// One request in flight per broker keeps sarama's own retries in partition order
	conf.Net.MaxOpenRequests = 1
	conf.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequestRequiredAcks)
	conf.Producer.Timeout = millis(cfg.RequestTimeoutMs, DefaultWriteTimeout)
	conf.Producer.Flush.Frequency = millis(cfg.LingerMs, DefaultBatchTimeout)
	conf.Producer.Flush.Messages = cfg.BatchNumMessages
	if cfg.MessageMaxBytes > 0 {
		conf.Producer.MaxMessageBytes = cfg.MessageMaxBytes
	}

	switch cfg.CompressionCodec {
	case "", "none":
	case "gzip":
		conf.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		conf.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		conf.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		// zstd needs produce request v7
		conf.Version = sarama.V2_1_0_0
		conf.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("%w: unsupported compression.codec %q", ErrInvalidConfig, cfg.CompressionCodec)
	}

	if tlsCfg := cfg.TLS(); tlsCfg.Enabled {
		c, err := createTLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = c
	}

	if saslCfg := cfg.SASL(); saslCfg.Enabled {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = saslCfg.Username
		conf.Net.SASL.Password = saslCfg.Password
		conf.Net.SASL.Handshake = true

		switch saslCfg.Mechanism {
		case "PLAIN":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			return nil, fmt.Errorf("%w: unsupported SASL mechanism: %s", ErrInvalidConfig, saslCfg.Mechanism)
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return conf, nil
}

// Produce sends records in one batch and reports each outcome. Records without a
// partition get a random one from the metadata cache.
func (p *SaramaProducer) Produce(ctx context.Context, records []Record, onDelivery DeliveryFunc) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	start := time.Now()
	msgs := make([]*sarama.ProducerMessage, len(records))
	var size int64
	for i, rec := range records {
		partition := rec.Partition
		if partition < 0 {
			ids, err := p.Partitions(ctx, rec.Topic)
			if err != nil {
				return err
			}
			partition = ids[rand.IntN(len(ids))] //nolint:gosec
		}
		msgs[i] = toSaramaMessage(rec, partition, i)
		size += int64(len(rec.Value))
	}

	err := p.producer.SendMessages(msgs)

	// Metadata carries each message's index so errors map back to records
	failed := make(map[int]error)
	var producerErrs sarama.ProducerErrors
	if errors.As(err, &producerErrs) {
		for _, pe := range producerErrs {
			if idx, ok := pe.Msg.Metadata.(int); ok {
				failed[idx] = TranslateError(pe.Err)
			}
		}
	}

	if onDelivery != nil {
		for i, rec := range records {
			report := DeliveryReport{Record: rec, Partition: int(msgs[i].Partition), Offset: msgs[i].Offset}
			if recErr, ok := failed[i]; ok {
				report.Err, report.Offset = recErr, -1
			} else if err != nil && len(failed) == 0 {
				// Not a ProducerErrors: the whole call failed
				report.Err, report.Offset = TranslateError(err), -1
			}
			onDelivery(report)
		}
	}

	err = TranslateError(err)
	observeOperation(p.observer, "produce", records[0].Topic, -1, time.Since(start), err, size)
	return err
}

// Partitions lists the partition ids of topic from sarama's metadata cache.
func (p *SaramaProducer) Partitions(_ context.Context, topic string) ([]int, error) {
	parts, err := p.client.Partitions(topic)
	if err != nil {
		return nil, TranslateError(err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}

	ids := make([]int, len(parts))
	for i, part := range parts {
		ids[i] = int(part)
	}
	slices.Sort(ids)
	return ids, nil
}

// Flush waits for in-flight Produce calls; sync sends leave nothing buffered.
func (p *SaramaProducer) Flush(ctx context.Context) error {
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

// Close closes the producer and its client.
func (p *SaramaProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.inflight.Wait()

	var errs []string
	if err := p.producer.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close sarama producer: %s", strings.Join(errs, "; "))
	}
	return nil
}

// toSaramaMessage leaves Key nil for keyless records so sarama writes a null key.
func toSaramaMessage(rec Record, partition, index int) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     rec.Topic,
		Partition: int32(partition), //nolint:gosec
		Value:     sarama.ByteEncoder(rec.Value),
		Timestamp: rec.Timestamp,
		Metadata:  index,
	}
	if rec.Key != nil {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}
	for _, h := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: h.Value})
	}
	return msg
}
