package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSaramaConfig(t *testing.T) {
	t.Parallel()

	t.Run("maps producer settings", func(t *testing.T) {
		t.Parallel()

		conf, err := toSaramaConfig(ProducerSettings{
			ClientID:            "workers",
			RequestRequiredAcks: RequireOne,
			LingerMs:            5,
			BatchNumMessages:    50,
			CompressionCodec:    "snappy",
		})
		require.NoError(t, err)

		assert.Equal(t, "workers", conf.ClientID)
		assert.Equal(t, sarama.WaitForLocal, conf.Producer.RequiredAcks)
		assert.Equal(t, 5*time.Millisecond, conf.Producer.Flush.Frequency)
		assert.Equal(t, 50, conf.Producer.Flush.Messages)
		assert.Equal(t, sarama.CompressionSnappy, conf.Producer.Compression)
		assert.True(t, conf.Producer.Return.Successes)
		assert.Equal(t, 1, conf.Net.MaxOpenRequests, "internal retries keep partition order")
		assert.False(t, conf.Net.SASL.Enable)
	})

	t.Run("scram over sasl_plaintext", func(t *testing.T) {
		t.Parallel()

		conf, err := toSaramaConfig(ProducerSettings{
			RequestRequiredAcks: RequireAll,
			SecuritySettings: SecuritySettings{
				SecurityProtocol: "sasl_plaintext",
				SASLMechanism:    "SCRAM-SHA-256",
				SASLUsername:     "user",
				SASLPassword:     "secret",
			},
		})
		require.NoError(t, err)

		assert.True(t, conf.Net.SASL.Enable)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA256), conf.Net.SASL.Mechanism)
		require.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc)
		assert.IsType(t, &XDGSCRAMClient{}, conf.Net.SASL.SCRAMClientGeneratorFunc())
	})

	t.Run("rejects unknown codecs", func(t *testing.T) {
		t.Parallel()

		_, err := toSaramaConfig(ProducerSettings{CompressionCodec: "brotli"})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects unknown mechanisms", func(t *testing.T) {
		t.Parallel()

		_, err := toSaramaConfig(ProducerSettings{
			SecuritySettings: SecuritySettings{SecurityProtocol: "sasl_ssl", SASLMechanism: "GSSAPI"},
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestToSaramaMessage(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0).UTC()
	msg := toSaramaMessage(Record{
		Topic:     "orders",
		Key:       []byte("k"),
		Value:     []byte("v"),
		Headers:   []Header{{Key: "traceparent", Value: []byte("00-abc")}},
		Timestamp: ts,
	}, 3, 7)

	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, int32(3), msg.Partition)
	assert.Equal(t, 7, msg.Metadata)
	assert.Equal(t, sarama.ByteEncoder("k"), msg.Key)
	assert.Equal(t, ts, msg.Timestamp)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, []byte("traceparent"), msg.Headers[0].Key)
}
