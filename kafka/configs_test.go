package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSettings(t *testing.T) {
	t.Parallel()

	initial := Settings{
		"bootstrap.servers": "localhost:9092",
		"group.id":          "orders",
		TopicConfigKey:      map[string]any{"auto.offset.reset": "earliest"},
	}
	user := Settings{
		"group.id":                "billing",
		"topic.auto.offset.reset": "latest",
		"session.timeout.ms":      nil,
		"nodot":                   "ignored",
		"fetch.wait.max.ms":       250,
	}

	merged := MergeSettings(initial, user)

	assert.Equal(t, "billing", merged["group.id"])
	assert.Equal(t, 250, merged["fetch.wait.max.ms"])
	assert.NotContains(t, merged, "nodot")
	assert.NotContains(t, merged, "session.timeout.ms")
	assert.NotContains(t, merged, "topic.auto.offset.reset")
	assert.Equal(t, map[string]any{"auto.offset.reset": "latest"}, merged[TopicConfigKey])

	// inputs are untouched
	assert.Equal(t, "orders", initial["group.id"])
	assert.Equal(t, map[string]any{"auto.offset.reset": "earliest"}, initial[TopicConfigKey])
}

func TestMergeSettingsNestedTopicConfig(t *testing.T) {
	t.Parallel()

	merged := MergeSettings(Settings{}, Settings{
		TopicConfigKey: map[string]any{"auto.offset.reset": "latest"},
	})
	assert.Equal(t, map[string]any{"auto.offset.reset": "latest"}, merged[TopicConfigKey])
}

func TestSettingsAccessors(t *testing.T) {
	t.Parallel()

	s := Settings{"enable.auto.commit": "true", "retries": 3, "off": false}
	assert.True(t, s.Bool("enable.auto.commit"))
	assert.False(t, s.Bool("off"))
	assert.False(t, s.Bool("missing"))
	assert.Equal(t, "3", s.String("retries"))
	assert.Equal(t, "", s.String("missing"))
}

func TestDecodeConsumerSettings(t *testing.T) {
	t.Parallel()

	t.Run("weakly typed values and topic reset", func(t *testing.T) {
		t.Parallel()

		cfg, err := DecodeConsumerSettings(Settings{
			"bootstrap.servers":  "a:9092, b:9092",
			"group.id":           "orders",
			"enable.auto.commit": "false",
			"session.timeout.ms": "10000",
			"client.rack":        "eu-1",
			TopicConfigKey:       map[string]any{"auto.offset.reset": "latest"},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
		assert.Equal(t, "orders", cfg.GroupID)
		assert.False(t, cfg.EnableAutoCommit)
		assert.Equal(t, 10000, cfg.SessionTimeoutMs)
		assert.Equal(t, "latest", cfg.AutoOffsetReset)
		assert.Equal(t, LastOffset, cfg.StartOffset())
		assert.Equal(t, DefaultMinBytes, cfg.FetchMinBytes)
		assert.Equal(t, "eu-1", cfg.Extra["client.rack"])
	})

	t.Run("defaults to earliest", func(t *testing.T) {
		t.Parallel()

		cfg, err := DecodeConsumerSettings(Settings{"bootstrap.servers": "a:9092"})
		require.NoError(t, err)
		assert.Equal(t, DefaultAutoOffsetReset, cfg.AutoOffsetReset)
		assert.Equal(t, FirstOffset, cfg.StartOffset())
	})

	t.Run("requires brokers", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeConsumerSettings(Settings{"group.id": "orders"})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects undecodable values", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeConsumerSettings(Settings{
			"bootstrap.servers":  "a:9092",
			"session.timeout.ms": "soon",
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestDecodeProducerSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		backend  string
		acks     int
		wantErr  bool
	}{
		{
			name:     "defaults",
			settings: Settings{"bootstrap.servers": "a:9092"},
			backend:  BackendSegmentio,
			acks:     RequireAll,
		},
		{
			name:     "sarama backend and leader acks",
			settings: Settings{"bootstrap.servers": "a:9092", "producer.backend": "Sarama", "request.required.acks": "1"},
			backend:  BackendSarama,
			acks:     RequireOne,
		},
		{
			name:     "unknown backend",
			settings: Settings{"bootstrap.servers": "a:9092", "producer.backend": "librdkafka"},
			wantErr:  true,
		},
		{
			name:     "missing brokers",
			settings: Settings{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := DecodeProducerSettings(tt.settings)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, cfg.Backend)
			assert.Equal(t, tt.acks, cfg.RequestRequiredAcks)
			assert.Equal(t, DefaultBatchSize, cfg.BatchNumMessages)
		})
	}
}

func TestSecuritySettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		protocol string
		tls      bool
		sasl     bool
	}{
		{"", false, false},
		{"plaintext", false, false},
		{"SSL", true, false},
		{"sasl_plaintext", false, true},
		{"SASL_SSL", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.protocol, func(t *testing.T) {
			t.Parallel()

			s := SecuritySettings{SecurityProtocol: tt.protocol, SASLMechanism: "scram-sha-512"}
			assert.Equal(t, tt.tls, s.TLS().Enabled)
			assert.Equal(t, tt.sasl, s.SASL().Enabled)
			assert.Equal(t, "SCRAM-SHA-512", s.SASL().Mechanism)
		})
	}
}
