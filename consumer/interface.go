package consumer

import "context"

// Handler receives decoded messages one at a time. Returning an error fails the
// current attempt and leaves the message uncommitted.
type Handler interface {
	// ConsumeMessage processes msg. ctx carries the message's trace span when a
	// tracer is configured.
	ConsumeMessage(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// ConsumeMessage calls f(ctx, msg).
func (f HandlerFunc) ConsumeMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// PartitionEOFHandler is implemented by handlers that want to know when a partition
// has been read to its end. enable.partition.eof must be set in the settings.
type PartitionEOFHandler interface {
	// PartitionEOF is called once per catch-up. An error fails the attempt like a
	// handler error.
	PartitionEOF(ctx context.Context, end PartitionEnd) error
}

// PartitionEnd identifies a partition that has been read up to Offset.
type PartitionEnd struct {
	// Topic and Partition name the partition that was caught up with
	Topic     string
	Partition int

	// Offset is the next offset to be written, the high watermark at the time
	Offset int64
}
