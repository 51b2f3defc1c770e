package consumer

import (
	"time"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// Message is a decoded record handed to a Handler. It is built fresh for every poll.
type Message struct {
	// raw is the polled record, never nil
	raw *kafka.Message

	// key is the decoded key, or raw.Key when the key is not schema-encoded
	key any

	// value is the decoded value, or raw.Value without a codec
	value any

	// schemaID is the writer schema of value, 0 for raw values
	schemaID int
}

func newMessage(raw *kafka.Message, key, value any, schemaID int) *Message {
	return &Message{raw: raw, key: key, value: value, schemaID: schemaID}
}

// Key returns the raw message key.
func (m *Message) Key() []byte { return m.raw.Key }

// DecodedKey returns the key decoded with its schema, or the raw key when it is not
// schema-encoded.
func (m *Message) DecodedKey() any { return m.key }

// Value returns the decoded value.
func (m *Message) Value() any { return m.value }

// Record returns the value as a record, or nil when it is not one.
func (m *Message) Record() map[string]any {
	record, _ := m.value.(map[string]any)
	return record
}

// Field returns a field of the record. It reports false when the value is not a
// record or the field is absent. Normalized fields hold their converted values.
func (m *Message) Field(name string) (any, bool) {
	record := m.Record()
	if record == nil {
		return nil, false
	}
	v, ok := record[name]
	return v, ok
}

// RawValue returns the undecoded value bytes.
func (m *Message) RawValue() []byte { return m.raw.Value }

// SchemaID returns the id the value was written with, or 0 for raw values.
func (m *Message) SchemaID() int { return m.schemaID }

// Topic returns the topic the message was read from.
func (m *Message) Topic() string { return m.raw.Topic }

// Partition returns the partition the message was read from.
func (m *Message) Partition() int { return m.raw.Partition }

// Offset returns the message's offset within its partition.
func (m *Message) Offset() int64 { return m.raw.Offset }

// Timestamp returns the record timestamp set by the producer or the broker.
func (m *Message) Timestamp() time.Time { return m.raw.Timestamp }

// Headers returns the headers keyed by name. A repeated name keeps its last value.
func (m *Message) Headers() map[string][]byte {
	headers := make(map[string][]byte, len(m.raw.Headers))
	for _, h := range m.raw.Headers {
		headers[h.Key] = h.Value
	}
	return headers
}

// carrier exposes the headers as a trace propagation carrier.
func (m *Message) carrier() map[string]string {
	carrier := make(map[string]string, len(m.raw.Headers))
	for _, h := range m.raw.Headers {
		carrier[h.Key] = string(h.Value)
	}
	return carrier
}
