package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestMessageConversion(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1700000000123).UTC()

	rec := Record{
		Topic:     "orders",
		Partition: 2,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Headers:   []Header{{Key: "h", Value: []byte("1")}},
		Timestamp: ts,
	}
	out := toKafkaMessage(rec)
	assert.Equal(t, "orders", out.Topic)
	assert.Equal(t, 2, out.Partition)
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("1")}}, out.Headers)
	assert.Equal(t, ts, out.Time)

	out.Offset = 41
	msg := fromKafkaMessage(out)
	assert.Equal(t, &Message{
		Topic:     "orders",
		Partition: 2,
		Offset:    41,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Headers:   []Header{{Key: "h", Value: []byte("1")}},
		Timestamp: ts,
	}, msg)
}

func TestSortKeys(t *testing.T) {
	t.Parallel()

	keys := []partitionKey{{"b", 0}, {"a", 2}, {"a", 0}}
	sortKeys(keys)
	assert.Equal(t, []partitionKey{{"a", 0}, {"a", 2}, {"b", 0}}, keys)
}

func TestEventKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "message", EventMessage.String())
	assert.Equal(t, "partition_eof", EventPartitionEOF.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventKind(9).String())
}
