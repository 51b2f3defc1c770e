package kafka

import (
	"context"
	"time"
)

// Special offsets accepted by Assign and Seek.
const (
	// FirstOffset starts a partition at its earliest retained offset.
	FirstOffset int64 = -2

	// LastOffset starts a partition at its high watermark.
	LastOffset int64 = -1
)

// TopicPartition identifies a partition and, depending on the call, an offset or a
// timestamp in milliseconds stored in Offset.
type TopicPartition struct {
	// Topic is the topic name
	Topic string

	// Partition is the partition id within Topic
	Partition int

	// Offset is an absolute offset, FirstOffset, LastOffset, or for
	// OffsetsForTimes a timestamp in milliseconds
	Offset int64
}

// Header is a single message header. Keys may repeat within one message.
type Header struct {
	Key   string
	Value []byte
}

// Message is a record read from a partition.
type Message struct {
	// Topic, Partition and Offset locate the record in the log
	Topic     string
	Partition int
	Offset    int64

	// Key is nil for records produced without a key
	Key []byte

	// Value is the raw payload, schema registry framing included
	Value []byte

	// Headers are in wire order
	Headers []Header

	// Timestamp is the record timestamp set by the producer or the broker
	Timestamp time.Time
}

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// EventMessage carries a Message.
	EventMessage EventKind = iota
	// EventPartitionEOF signals the consumer caught up with a partition. Not an error.
	EventPartitionEOF
	// EventError carries a transport-level error.
	EventError
)

// String returns the lower-case name used in logs and metrics labels.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPartitionEOF:
		return "partition_eof"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the result of a poll. Exactly one of Message, Partition or Err is
// meaningful, selected by Kind.
type Event struct {
	// Kind selects the meaningful field
	Kind EventKind

	// Message is set for EventMessage
	Message *Message

	// Partition is set for EventPartitionEOF, its Offset being the next offset
	Partition TopicPartition

	// Err is set for EventError
	Err error
}

// Record is a message to produce. Partition must be resolved by the caller; a
// negative value lets the backend choose.
type Record struct {
	// Topic is the destination topic
	Topic string

	// Partition is the destination partition, or negative for backend choice
	Partition int

	// Key and Value are written as given; encoding happens before this point
	Key   []byte
	Value []byte

	// Headers are written in order
	Headers []Header

	// Timestamp is the record timestamp. Zero lets the broker stamp it.
	Timestamp time.Time

	// Opaque is handed back untouched in the DeliveryReport.
	Opaque any
}

// DeliveryReport is the broker's answer for one produced Record.
type DeliveryReport struct {
	// Record is the produced record, Opaque included
	Record Record

	// Partition is where the record landed
	Partition int

	// Offset is -1 when the backend does not report offsets.
	Offset int64

	// Err is nil on success. Classify it with IsRetryableError.
	Err error
}

// DeliveryFunc receives one report per produced record.
type DeliveryFunc func(DeliveryReport)

// Consumer is the broker capability used by consumer workers.
type Consumer interface {
	// Subscribe joins the consumer group for topics.
	Subscribe(ctx context.Context, topics []string) error

	// Assign replaces group membership with a static assignment starting at each
	// partition's Offset, which may be FirstOffset or LastOffset.
	Assign(ctx context.Context, partitions []TopicPartition) error

	// Assignment returns the partitions currently owned. After Subscribe it waits
	// until the group has assigned this member its share, which may be empty.
	Assignment(ctx context.Context) ([]TopicPartition, error)

	// Seek moves owned partitions to each Offset, which may be FirstOffset or
	// LastOffset, without leaving the group.
	Seek(ctx context.Context, partitions []TopicPartition) error

	// Partitions lists the partition ids of topic.
	Partitions(ctx context.Context, topic string) ([]int, error)

	// Poll waits up to timeout for the next event. It returns nil on timeout.
	Poll(ctx context.Context, timeout time.Duration) *Event

	// Commit stores the position after the last polled message of every partition.
	Commit(ctx context.Context, async bool) error

	// OffsetsForTimes resolves the earliest offset whose timestamp is at or after the
	// millisecond timestamp held in each partition's Offset.
	OffsetsForTimes(ctx context.Context, partitions []TopicPartition) ([]TopicPartition, error)

	// Positions returns the next offset to be read for each owned partition.
	Positions(ctx context.Context) ([]TopicPartition, error)

	// Close leaves the group and releases every connection. Further calls fail
	// with ErrClosed.
	Close() error
}

// Producer is the broker capability used by producer workers.
type Producer interface {
	// Produce writes records and reports each outcome to onDelivery, which may be nil.
	// The returned error covers the whole call.
	//
	// The records of one partition within a call are written as a unit, in order:
	// either all of them succeed or all of them fail with the same error. Callers
	// rely on this to retry a failed partition without reordering it.
	Produce(ctx context.Context, records []Record, onDelivery DeliveryFunc) error

	// Partitions lists the partition ids of topic.
	Partitions(ctx context.Context, topic string) ([]int, error)

	// Flush blocks until every produced record has been acknowledged.
	Flush(ctx context.Context) error

	// Close releases the backend. Records not yet flushed may be lost.
	Close() error
}

// Factory opens broker backends from flat client settings. Implementations decode
// the settings with DecodeConsumerSettings or DecodeProducerSettings and return
// errors wrapping ErrInvalidConfig for unusable values.
type Factory interface {
	// NewConsumer returns an idle consumer; nothing is read before Subscribe or Assign.
	NewConsumer(settings Settings) (Consumer, error)

	// NewProducer returns a producer ready to Produce.
	NewProducer(settings Settings) (Producer, error)
}
