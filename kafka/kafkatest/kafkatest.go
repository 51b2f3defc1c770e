// Package kafkatest provides in-memory fakes of the kafka capability interfaces.
package kafkatest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// Commit records one Consumer.Commit call.
type Commit struct {
	Async   bool
	Offsets []kafka.TopicPartition
}

// Consumer replays scripted events. A nil event is returned as a poll timeout, and
// an exhausted script keeps timing out.
type Consumer struct {
	mu sync.Mutex

	events     []*kafka.Event
	subscribed []string
	static     bool
	assigned   []kafka.TopicPartition
	assigns    [][]kafka.TopicPartition
	seeks      [][]kafka.TopicPartition
	commits    []Commit
	last       map[kafka.TopicPartition]int64
	polls      int
	closes     int

	// PartitionIDs lists partitions per topic. Topics not listed have partition 0.
	PartitionIDs map[string][]int

	// Group shares partitions with the other consumers subscribed through it.
	// Without one a subscribed consumer owns every partition of its topics.
	Group *Group

	// OffsetForTime resolves OffsetsForTimes. By default it returns the timestamp
	// divided by 1000.
	OffsetForTime func(tp kafka.TopicPartition) int64

	SubscribeErr error
	CommitErr    error
}

var _ kafka.Consumer = (*Consumer)(nil)

// NewConsumer returns a consumer that will replay events in order.
func NewConsumer(events ...*kafka.Event) *Consumer {
	return &Consumer{
		events: events,
		last:   make(map[kafka.TopicPartition]int64),
	}
}

// Push appends events to the script.
func (c *Consumer) Push(events ...*kafka.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *Consumer) Subscribe(_ context.Context, topics []string) error {
	c.mu.Lock()
	if c.SubscribeErr != nil {
		c.mu.Unlock()
		return c.SubscribeErr
	}
	c.subscribed = slices.Clone(topics)
	c.static = false
	c.assigned = nil
	group := c.Group
	c.mu.Unlock()

	if group != nil {
		group.join(c)
	}
	return nil
}

func (c *Consumer) Assign(_ context.Context, partitions []kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.static = true
	c.assigned = slices.Clone(partitions)
	c.assigns = append(c.assigns, slices.Clone(partitions))
	return nil
}

func (c *Consumer) Assignment(ctx context.Context) ([]kafka.TopicPartition, error) {
	c.mu.Lock()
	if c.static || len(c.subscribed) == 0 {
		defer c.mu.Unlock()
		return slices.Clone(c.assigned), nil
	}
	group, topics := c.Group, slices.Clone(c.subscribed)
	c.mu.Unlock()

	if group != nil {
		return group.share(ctx, c, topics)
	}
	var out []kafka.TopicPartition
	for _, topic := range topics {
		for _, id := range c.partitionIDs(topic) {
			out = append(out, kafka.TopicPartition{Topic: topic, Partition: id, Offset: kafka.LastOffset})
		}
	}
	return out, nil
}

func (c *Consumer) Seek(_ context.Context, partitions []kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, slices.Clone(partitions))
	for _, tp := range partitions {
		delete(c.last, kafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition})
	}
	return nil
}

func (c *Consumer) Partitions(_ context.Context, topic string) ([]int, error) {
	return c.partitionIDs(topic), nil
}

func (c *Consumer) partitionIDs(topic string) []int {
	if ids, ok := c.PartitionIDs[topic]; ok {
		return slices.Clone(ids)
	}
	return []int{0}
}

func (c *Consumer) Poll(_ context.Context, _ time.Duration) *kafka.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polls++
	if len(c.events) == 0 {
		return nil
	}
	event := c.events[0]
	c.events = c.events[1:]

	if event != nil && event.Kind == kafka.EventMessage {
		msg := event.Message
		c.last[kafka.TopicPartition{Topic: msg.Topic, Partition: msg.Partition}] = msg.Offset
	}
	return event
}

func (c *Consumer) Commit(_ context.Context, async bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		return c.CommitErr
	}

	offsets := make([]kafka.TopicPartition, 0, len(c.last))
	for tp, offset := range c.last {
		tp.Offset = offset + 1
		offsets = append(offsets, tp)
	}
	c.commits = append(c.commits, Commit{Async: async, Offsets: offsets})
	return nil
}

func (c *Consumer) OffsetsForTimes(_ context.Context, partitions []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	out := make([]kafka.TopicPartition, 0, len(partitions))
	for _, tp := range partitions {
		offset := tp.Offset / 1000
		if c.OffsetForTime != nil {
			offset = c.OffsetForTime(tp)
		}
		out = append(out, kafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition, Offset: offset})
	}
	return out, nil
}

func (c *Consumer) Positions(ctx context.Context) ([]kafka.TopicPartition, error) {
	owned, err := c.Assignment(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]kafka.TopicPartition, 0, len(owned))
	for _, tp := range owned {
		if last, ok := c.last[kafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition}]; ok {
			tp.Offset = last + 1
		}
		out = append(out, tp)
	}
	return out, nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// Subscribed returns the topics of the last Subscribe call.
func (c *Consumer) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscribed)
}

// Assigns returns every Assign call in order.
func (c *Consumer) Assigns() [][]kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.assigns)
}

// Seeks returns every Seek call in order.
func (c *Consumer) Seeks() [][]kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seeks)
}

// Commits returns every Commit call in order.
func (c *Consumer) Commits() []Commit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.commits)
}

// Polls returns how many times Poll was called.
func (c *Consumer) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// Closes returns how many times Close was called.
func (c *Consumer) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Pending returns how many scripted events have not been polled.
func (c *Consumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// MessageEvent builds a message event.
func MessageEvent(topic string, partition int, offset int64, key, value []byte, headers ...kafka.Header) *kafka.Event {
	return &kafka.Event{
		Kind: kafka.EventMessage,
		Message: &kafka.Message{
			Topic:     topic,
			Partition: partition,
			Offset:    offset,
			Key:       key,
			Value:     value,
			Headers:   headers,
			Timestamp: time.UnixMilli(1700000000000).UTC(),
		},
	}
}

// EOFEvent builds a partition EOF event.
func EOFEvent(topic string, partition int, offset int64) *kafka.Event {
	return &kafka.Event{
		Kind:      kafka.EventPartitionEOF,
		Partition: kafka.TopicPartition{Topic: topic, Partition: partition, Offset: offset},
	}
}

// ErrorEvent builds a transport error event.
func ErrorEvent(err error) *kafka.Event {
	return &kafka.Event{Kind: kafka.EventError, Err: err}
}
