package kafkatest

import (
	"context"
	"slices"
	"sync"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// Group splits topic partitions among the consumers subscribed through it. Shares
// are handed out only once size members have joined, each member receiving a
// contiguous range per topic in join order.
type Group struct {
	mu      sync.Mutex
	size    int
	members []*Consumer
	full    chan struct{}
}

// NewGroup returns a group that assigns once size members have subscribed.
func NewGroup(size int) *Group {
	return &Group{size: max(size, 1), full: make(chan struct{})}
}

func (g *Group) join(c *Consumer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if slices.Contains(g.members, c) {
		return
	}
	g.members = append(g.members, c)
	if len(g.members) == g.size {
		close(g.full)
	}
}

// share waits for the group to fill and returns c's partitions of topics.
func (g *Group) share(ctx context.Context, c *Consumer, topics []string) ([]kafka.TopicPartition, error) {
	select {
	case <-g.full:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	index := slices.Index(g.members, c)
	g.mu.Unlock()
	if index < 0 || index >= g.size {
		return nil, nil
	}

	var out []kafka.TopicPartition
	for _, topic := range topics {
		ids := c.partitionIDs(topic)
		chunk, extra := len(ids)/g.size, len(ids)%g.size
		start := index*chunk + min(index, extra)
		count := chunk
		if index < extra {
			count++
		}
		for _, id := range ids[start : start+count] {
			out = append(out, kafka.TopicPartition{Topic: topic, Partition: id, Offset: kafka.LastOffset})
		}
	}
	return out, nil
}
