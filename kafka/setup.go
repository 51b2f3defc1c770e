package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// ClientFactory opens segmentio/kafka-go consumers and producers, or sarama producers
// when producer.backend is "sarama". It implements Factory.
//
// The factory holds no connections. Each call opens a fresh backend, so every
// worker attempt gets its own and closes it in its teardown.
type ClientFactory struct {
	// observer is handed to every backend for per-operation events
	observer observability.Observer

	// logger is handed to every backend for lifecycle and failure logs
	logger Logger
}

// NewClientFactory returns a factory without observer or logger.
//
// Example:
//
//	factory := kafka.NewClientFactory().WithLogger(log).WithObserver(observer)
//	consumer, err := factory.NewConsumer(kafka.Settings{
//		"bootstrap.servers": "localhost:9092",
//		"group.id":          "orders",
//	})
//	if err != nil {
//		return err
//	}
//	defer consumer.Close()
func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// WithObserver attaches an observer passed on to every backend it opens.
func (f *ClientFactory) WithObserver(observer observability.Observer) *ClientFactory {
	f.observer = observer
	return f
}

// WithLogger attaches a logger passed on to every backend it opens.
func (f *ClientFactory) WithLogger(logger Logger) *ClientFactory {
	f.logger = logger
	return f
}

// NewConsumer decodes settings and returns an idle kafka-go consumer. Nothing is
// dialed until Subscribe or Assign.
//
// Returns an error wrapping ErrInvalidConfig when the settings cannot be decoded or
// the TLS and SASL material cannot be loaded.
func (f *ClientFactory) NewConsumer(settings Settings) (Consumer, error) {
	cfg, err := DecodeConsumerSettings(settings)
	if err != nil {
		return nil, err
	}
	return NewReaderConsumer(cfg, f.observer, f.logger)
}

// NewProducer decodes settings and opens the backend selected by producer.backend.
//
// Returns an error wrapping ErrInvalidConfig for unusable settings. The sarama
// backend also fails when no broker is reachable.
func (f *ClientFactory) NewProducer(settings Settings) (Producer, error) {
	cfg, err := DecodeProducerSettings(settings)
	if err != nil {
		return nil, err
	}
	if cfg.Backend == BackendSarama {
		return NewSaramaProducer(cfg, f.observer, f.logger)
	}
	return NewWriterProducer(cfg, f.observer, f.logger)
}

// connection bundles what every segmentio backend needs to reach the brokers.
type connection struct {
	// brokers are the bootstrap addresses, tried in order for metadata lookups
	brokers []string

	// clientID is sent with every request
	clientID string

	// tls is nil for plaintext connections
	tls *tls.Config

	// mechanism is nil when SASL is off
	mechanism sasl.Mechanism
}

// newConnection loads the TLS and SASL material once so every dialer, transport and
// client built from the connection shares it.
func newConnection(brokers []string, clientID string, security SecuritySettings) (*connection, error) {
	conn := &connection{brokers: brokers, clientID: clientID}

	if tlsCfg := security.TLS(); tlsCfg.Enabled {
		c, err := createTLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		conn.tls = c
	}

	if saslCfg := security.SASL(); saslCfg.Enabled {
		m, err := createSASLMechanism(saslCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		conn.mechanism = m
	}

	return conn, nil
}

// dialer is used by Readers, consumer groups and metadata lookups.
func (c *connection) dialer() *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:      c.clientID,
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           c.tls,
		SASLMechanism: c.mechanism,
	}
}

// transport is used by the Writer and by Client requests.
func (c *connection) transport() *kafka.Transport {
	return &kafka.Transport{
		ClientID: c.clientID,
		TLS:      c.tls,
		SASL:     c.mechanism,
	}
}

// client issues raw protocol requests such as OffsetCommit.
func (c *connection) client() *kafka.Client {
	return &kafka.Client{
		Addr:      kafka.TCP(c.brokers...),
		Transport: c.transport(),
	}
}

// partitions looks up the partition ids of topic, trying each broker in turn.
func (c *connection) partitions(ctx context.Context, topic string) ([]int, error) {
	var lastErr error
	for _, broker := range c.brokers {
		parts, err := c.dialer().LookupPartitions(ctx, "tcp", broker, topic)
		if err != nil {
			lastErr = err
			continue
		}
		ids := make([]int, 0, len(parts))
		for _, p := range parts {
			ids = append(ids, p.ID)
		}
		// An unknown topic comes back as an empty list rather than an error
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
		}
		slices.Sort(ids)
		return ids, nil
	}
	return nil, TranslateError(lastErr)
}

// offsetAt resolves the first offset at or after t on one partition by asking its leader.
func (c *connection) offsetAt(ctx context.Context, tp TopicPartition, t time.Time) (int64, error) {
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := c.dialer().DialLeader(ctx, "tcp", broker, tp.Topic, tp.Partition)
		if err != nil {
			lastErr = err
			continue
		}
		// ReadOffset answers with the high watermark when every record is older than t
		offset, err := conn.ReadOffset(t)
		_ = conn.Close()
		if err != nil {
			return 0, TranslateError(err)
		}
		return offset, nil
	}
	return 0, TranslateError(lastErr)
}

// createErrorLogger routes kafka-go internal errors to the logger, or drops them.
func createErrorLogger(logger Logger) kafka.LoggerFunc {
	if logger == nil {
		return func(string, ...interface{}) {}
	}
	return func(msg string, args ...interface{}) {
		formatted := msg
		if len(args) > 0 {
			formatted = fmt.Sprintf(msg, args...)
		}
		logger.ErrorWithContext(context.Background(), "Kafka internal error", nil, map[string]interface{}{
			"error": formatted,
		})
	}
}

// compressionCodec maps compression.codec onto a kafka-go codec. "" and "none"
// return a nil codec.
func compressionCodec(name string) (compress.Codec, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "gzip":
		return &compress.GzipCodec, nil
	case "snappy":
		return &compress.SnappyCodec, nil
	case "lz4":
		return &compress.Lz4Codec, nil
	case "zstd":
		return &compress.ZstdCodec, nil
	default:
		return nil, fmt.Errorf("%w: unsupported compression.codec %q", ErrInvalidConfig, name)
	}
}

// createTLSConfig creates a TLS configuration from the provided config
func createTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
	}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// createSASLMechanism creates a SASL mechanism from the provided config
func createSASLMechanism(cfg SASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("%w: unsupported SASL mechanism: %s", ErrInvalidConfig, cfg.Mechanism)
	}
}
