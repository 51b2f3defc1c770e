package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

type resetKind int

const (
	resetBeginning resetKind = iota
	resetEnd
	resetTime
)

// ResetTarget is where ResetOffsets moves every partition.
type ResetTarget struct {
	kind resetKind
	at   time.Time
}

var (
	// Beginning is the first retained offset.
	Beginning = ResetTarget{kind: resetBeginning}

	// End is the high watermark.
	End = ResetTarget{kind: resetEnd}
)

// AtTime is the first offset whose timestamp is at or after t.
func AtTime(t time.Time) ResetTarget {
	return ResetTarget{kind: resetTime, at: t}
}

// String returns "beginning", "end" or the target time in RFC 3339.
func (t ResetTarget) String() string {
	switch t.kind {
	case resetBeginning:
		return "beginning"
	case resetEnd:
		return "end"
	default:
		return t.at.UTC().Format(time.RFC3339Nano)
	}
}

// ResetOffsets moves every partition this consumer owns to target. After a
// subscribe the owned partitions are this member's share of the group, so
// instances of one worker reset disjoint partitions and keep their membership.
func (w *Worker) ResetOffsets(ctx context.Context, target ResetTarget) error {
	partitions, err := w.consumer.Assignment(ctx)
	if err != nil {
		return fmt.Errorf("assignment of %s: %w", w.spec.Topic, err)
	}

	switch target.kind {
	case resetBeginning:
		partitions = withOffset(partitions, kafka.FirstOffset)
	case resetEnd:
		partitions = withOffset(partitions, kafka.LastOffset)
	case resetTime:
		partitions = withOffset(partitions, target.at.UnixMilli())
		partitions, err = w.consumer.OffsetsForTimes(ctx, partitions)
		if err != nil {
			return fmt.Errorf("offsets for %s: %w", target, err)
		}
	}

	if err := w.consumer.Seek(ctx, partitions); err != nil {
		return fmt.Errorf("reset offsets to %s: %w", target, err)
	}

	w.logInfo(ctx, "Consumer offsets reset", map[string]interface{}{
		"target":     target.String(),
		"partitions": len(partitions),
	})
	return nil
}

func withOffset(partitions []kafka.TopicPartition, offset int64) []kafka.TopicPartition {
	out := make([]kafka.TopicPartition, len(partitions))
	for i, tp := range partitions {
		tp.Offset = offset
		out[i] = tp
	}
	return out
}
