package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Settings is a flat librdkafka-style client configuration, e.g.
// {"bootstrap.servers": "localhost:9092", "group.id": "orders"}.
type Settings map[string]any

// TopicConfigKey holds topic-level settings nested under the client settings.
const TopicConfigKey = "default.topic.config"

// Backend names accepted by the producer.backend setting.
const (
	// BackendSegmentio writes through a segmentio/kafka-go Writer. It is the default.
	BackendSegmentio = "segmentio"

	// BackendSarama writes through an IBM/sarama SyncProducer.
	BackendSarama = "sarama"
)

// Default values for client settings.
const (
	// Fetch sizing for partition readers
	DefaultMinBytes = 1
	DefaultMaxBytes = 10e6 // 10MB
	DefaultMaxWait  = 500 * time.Millisecond

	// Group membership and commit timing
	DefaultSessionTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultCommitInterval    = 1 * time.Second

	// Producer batching and write bounds
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 10 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second
	DefaultRequiredAcks = -1 // WaitForAll

	// DefaultAutoOffsetReset applies when a group has no committed offset.
	DefaultAutoOffsetReset = "earliest"

	// Producer acknowledgment modes
	RequireNone = 0  // Fire-and-forget (no acknowledgment)
	RequireOne  = 1  // Wait for leader only
	RequireAll  = -1 // Wait for all in-sync replicas (most durable)
)

// MergeSettings overlays user settings onto initial ones. Nil values and keys without
// a dot are skipped; "topic."-prefixed keys land in the default.topic.config map.
// Neither input is modified.
func MergeSettings(initial, user Settings) Settings {
	merged := make(Settings, len(initial)+len(user))
	for key, val := range initial {
		merged[key] = val
	}

	topicConfig := map[string]any{}
	if existing, ok := initial[TopicConfigKey].(map[string]any); ok {
		for key, val := range existing {
			topicConfig[key] = val
		}
	}
	merged[TopicConfigKey] = topicConfig

	for key, val := range user {
		if val == nil || !strings.Contains(key, ".") {
			continue
		}
		if strings.HasPrefix(key, "topic.") {
			topicConfig[strings.TrimPrefix(key, "topic.")] = val
			continue
		}
		if key == TopicConfigKey {
			if nested, ok := val.(map[string]any); ok {
				for k, v := range nested {
					topicConfig[k] = v
				}
			}
			continue
		}
		merged[key] = val
	}

	return merged
}

// String returns the string form of key, or "" when it is absent. Non-string
// values are formatted with fmt.Sprint.
func (s Settings) String(key string) string {
	val, ok := s[key]
	if !ok || val == nil {
		return ""
	}
	return fmt.Sprint(val)
}

// Bool reports whether key holds a truthy value.
func (s Settings) Bool(key string) bool {
	var out bool
	if err := decodeWeak(s[key], &out); err != nil {
		return false
	}
	return out
}

// SecuritySettings configures broker TLS and SASL. It is embedded in both typed
// settings views, so the same keys apply to consumers and producers.
type SecuritySettings struct {
	// SecurityProtocol is one of plaintext, ssl, sasl_plaintext, sasl_ssl.
	SecurityProtocol string `mapstructure:"security.protocol"`

	// SASLMechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512, in any case.
	SASLMechanism string `mapstructure:"sasl.mechanism"`

	// SASLUsername and SASLPassword are the SASL credentials.
	SASLUsername string `mapstructure:"sasl.username"`
	SASLPassword string `mapstructure:"sasl.password"` //nolint:gosec

	// SSLCALocation is a PEM file of CAs trusted for the broker certificate.
	SSLCALocation string `mapstructure:"ssl.ca.location"`

	// SSLCertificateLocation and SSLKeyLocation hold the client certificate for
	// mutual TLS. Both or neither must be set.
	SSLCertificateLocation string `mapstructure:"ssl.certificate.location"`
	SSLKeyLocation         string `mapstructure:"ssl.key.location"`

	// SSLSkipVerify disables broker certificate verification. Test setups only.
	SSLSkipVerify bool `mapstructure:"enable.ssl.certificate.verification.skip"`
}

// TLS returns the TLS configuration implied by the security settings.
func (s SecuritySettings) TLS() TLSConfig {
	protocol := strings.ToLower(s.SecurityProtocol)
	return TLSConfig{
		Enabled:            protocol == "ssl" || protocol == "sasl_ssl",
		CACertPath:         s.SSLCALocation,
		ClientCertPath:     s.SSLCertificateLocation,
		ClientKeyPath:      s.SSLKeyLocation,
		InsecureSkipVerify: s.SSLSkipVerify,
	}
}

// SASL returns the SASL configuration implied by the security settings.
func (s SecuritySettings) SASL() SASLConfig {
	protocol := strings.ToLower(s.SecurityProtocol)
	return SASLConfig{
		Enabled:   strings.HasPrefix(protocol, "sasl_"),
		Mechanism: strings.ToUpper(s.SASLMechanism),
		Username:  s.SASLUsername,
		Password:  s.SASLPassword,
	}
}

// ConsumerSettings is the typed view of consumer client settings. Keys not listed
// here are kept in Extra and ignored by the kafka-go backend.
type ConsumerSettings struct {
	// BootstrapServers is a comma separated host:port list. It is required.
	BootstrapServers string `mapstructure:"bootstrap.servers"`

	// ClientID identifies the client in broker logs.
	ClientID string `mapstructure:"client.id"`

	// GroupID is the consumer group. Subscribe requires it; Assign commits under it
	// when set.
	GroupID string `mapstructure:"group.id"`

	// EnableAutoCommit commits the last polled offsets every AutoCommitIntervalMs
	// in the background.
	EnableAutoCommit     bool `mapstructure:"enable.auto.commit"`
	AutoCommitIntervalMs int  `mapstructure:"auto.commit.interval.ms"`

	// SessionTimeoutMs and HeartbeatIntervalMs tune group membership. Zero uses
	// DefaultSessionTimeout and DefaultHeartbeatInterval.
	SessionTimeoutMs    int `mapstructure:"session.timeout.ms"`
	HeartbeatIntervalMs int `mapstructure:"heartbeat.interval.ms"`

	// Fetch sizing for each partition reader. Zero uses DefaultMinBytes,
	// DefaultMaxBytes and DefaultMaxWait.
	FetchMinBytes  int `mapstructure:"fetch.min.bytes"`
	FetchMaxBytes  int `mapstructure:"fetch.max.bytes"`
	FetchWaitMaxMs int `mapstructure:"fetch.wait.max.ms"`

	// EnablePartitionEOF emits an EventPartitionEOF after the message that
	// reaches a partition's high watermark.
	EnablePartitionEOF bool `mapstructure:"enable.partition.eof"`

	// AutoOffsetReset is earliest or latest. It may also be given as
	// topic.auto.offset.reset.
	AutoOffsetReset string `mapstructure:"auto.offset.reset"`

	// SchemaRegistryURL is carried for the worker's codec; the backend ignores it.
	SchemaRegistryURL string `mapstructure:"schema.registry.url"`

	SecuritySettings `mapstructure:",squash"`

	// TopicConfig holds the nested default.topic.config map built by MergeSettings.
	TopicConfig map[string]any `mapstructure:"default.topic.config"`

	// Extra collects every key without a field above.
	Extra map[string]any `mapstructure:",remain"`
}

// Brokers splits bootstrap.servers.
func (s ConsumerSettings) Brokers() []string {
	return splitBrokers(s.BootstrapServers)
}

// StartOffset maps auto.offset.reset onto FirstOffset or LastOffset.
func (s ConsumerSettings) StartOffset() int64 {
	switch strings.ToLower(s.AutoOffsetReset) {
	case "latest", "largest", "end":
		return LastOffset
	default:
		return FirstOffset
	}
}

// ProducerSettings is the typed view of producer client settings. Keys not listed
// here are kept in Extra and ignored by both backends.
type ProducerSettings struct {
	// BootstrapServers is a comma separated host:port list. It is required.
	BootstrapServers string `mapstructure:"bootstrap.servers"`

	// ClientID identifies the client in broker logs.
	ClientID string `mapstructure:"client.id"`

	// LingerMs is how long a partial batch waits for more records. Zero uses
	// DefaultBatchTimeout.
	LingerMs int `mapstructure:"linger.ms"`

	// BatchNumMessages caps records per batch. Zero uses DefaultBatchSize.
	BatchNumMessages int `mapstructure:"batch.num.messages"`

	// RequestRequiredAcks is RequireNone, RequireOne or RequireAll.
	RequestRequiredAcks int `mapstructure:"request.required.acks"`

	// RequestTimeoutMs bounds one write. Zero uses DefaultWriteTimeout.
	RequestTimeoutMs int `mapstructure:"request.timeout.ms"`

	// CompressionCodec is none, gzip, snappy, lz4 or zstd.
	CompressionCodec string `mapstructure:"compression.codec"`

	// MessageMaxBytes caps the size of one produce request.
	MessageMaxBytes int `mapstructure:"message.max.bytes"`

	// AllowTopicCreation lets the first write create a missing topic.
	AllowTopicCreation bool `mapstructure:"allow.auto.create.topics"`

	// Backend selects segmentio (default) or sarama.
	Backend string `mapstructure:"producer.backend"`

	// SchemaRegistryURL is carried for the worker's codec; the backend ignores it.
	SchemaRegistryURL string `mapstructure:"schema.registry.url"`

	SecuritySettings `mapstructure:",squash"`

	// TopicConfig holds the nested default.topic.config map built by MergeSettings.
	TopicConfig map[string]any `mapstructure:"default.topic.config"`

	// Extra collects every key without a field above.
	Extra map[string]any `mapstructure:",remain"`
}

// Brokers splits bootstrap.servers.
func (s ProducerSettings) Brokers() []string {
	return splitBrokers(s.BootstrapServers)
}

// DecodeClientSettings decodes flat settings into out, a pointer to a struct with
// mapstructure tags. Values are weakly typed, so "500" decodes into an int field.
func DecodeClientSettings(settings Settings, out any) error {
	if err := decodeWeak(map[string]any(settings), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DecodeConsumerSettings decodes and validates consumer settings, applying defaults.
//
// Parameters:
//   - settings: Flat client settings, typically built with MergeSettings
//
// Returns the typed settings, or an error wrapping ErrInvalidConfig when a value
// has the wrong type or bootstrap.servers is missing.
//
// Example:
//
//	cfg, err := kafka.DecodeConsumerSettings(kafka.Settings{
//		"bootstrap.servers":  "localhost:9092",
//		"group.id":           "orders",
//		"session.timeout.ms": "6000",
//	})
func DecodeConsumerSettings(settings Settings) (ConsumerSettings, error) {
	var out ConsumerSettings
	if err := DecodeClientSettings(settings, &out); err != nil {
		return out, err
	}
	if out.AutoOffsetReset == "" {
		if reset, ok := out.TopicConfig["auto.offset.reset"]; ok {
			out.AutoOffsetReset = fmt.Sprint(reset)
		} else {
			out.AutoOffsetReset = DefaultAutoOffsetReset
		}
	}
	if out.FetchMinBytes == 0 {
		out.FetchMinBytes = DefaultMinBytes
	}
	if out.FetchMaxBytes == 0 {
		out.FetchMaxBytes = DefaultMaxBytes
	}
	if len(out.Brokers()) == 0 {
		return out, fmt.Errorf("%w: bootstrap.servers is required", ErrInvalidConfig)
	}
	return out, nil
}

// DecodeProducerSettings decodes and validates producer settings, applying defaults.
// An unknown producer.backend is rejected with ErrInvalidConfig.
func DecodeProducerSettings(settings Settings) (ProducerSettings, error) {
	out := ProducerSettings{RequestRequiredAcks: DefaultRequiredAcks}
	if err := DecodeClientSettings(settings, &out); err != nil {
		return out, err
	}
	if out.Backend == "" {
		out.Backend = BackendSegmentio
	}
	out.Backend = strings.ToLower(out.Backend)
	if out.Backend != BackendSegmentio && out.Backend != BackendSarama {
		return out, fmt.Errorf("%w: unknown producer.backend %q", ErrInvalidConfig, out.Backend)
	}
	if out.BatchNumMessages == 0 {
		out.BatchNumMessages = DefaultBatchSize
	}
	if len(out.Brokers()) == 0 {
		return out, fmt.Errorf("%w: bootstrap.servers is required", ErrInvalidConfig)
	}
	return out, nil
}

func decodeWeak(input, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func splitBrokers(servers string) []string {
	var brokers []string
	for _, broker := range strings.Split(servers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Logger matches the context-aware methods of logger.LoggerClient.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// TLSConfig contains TLS/SSL configuration parameters.
type TLSConfig struct {
	// Enabled turns on TLS for every broker connection
	Enabled bool

	// CACertPath is the file path to the CA certificate for verifying the broker
	CACertPath string

	// ClientCertPath is the file path to the client certificate for mutual TLS
	ClientCertPath string

	// ClientKeyPath is the file path to the private key of ClientCertPath
	ClientKeyPath string

	// InsecureSkipVerify controls whether to skip verification of the server's certificate
	// WARNING: Setting this to true is insecure and should only be used in testing
	InsecureSkipVerify bool
}

// SASLConfig contains SASL authentication configuration parameters.
type SASLConfig struct {
	// Enabled turns on SASL authentication
	Enabled bool

	// Mechanism is one of PLAIN, SCRAM-SHA-256, SCRAM-SHA-512.
	Mechanism string

	// Username is the SASL username
	Username string

	// Password is the SASL password
	Password string //nolint:gosec
}
