package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aalemi-dev/kafka-workers/observability"
)

type partitionKey struct {
	topic     string
	partition int
}

// fetchResult is one read handed from a partition goroutine to Poll. A zero epoch
// marks a group error that belongs to no partition.
type fetchResult struct {
	key   partitionKey
	epoch int64
	msg   kafka.Message
	err   error
}

// partitionRun is the current Reader of an owned partition. Seek replaces it.
type partitionRun struct {
	reader *kafka.Reader
	start  int64
	epoch  int64
	ctx    context.Context
	cancel context.CancelFunc

	// followed is set once a follow goroutine owns the reader and will close it
	followed bool
}

// ReaderConsumer is the segmentio/kafka-go Consumer.
//
// Subscribe joins a consumer group through kafka.ConsumerGroup. Every generation
// hands this member its own partitions, each read by a dedicated Reader starting at
// the committed offset, and commits go through the generation. Assign leaves the
// group and reads each partition with its own Reader, committing through the group
// coordinator under the same group.id so progress survives a later Subscribe.
// Partition EOF events are synthesized from each message's high watermark when
// enable.partition.eof is set.
type ReaderConsumer struct {
	cfg      ConsumerSettings
	conn     *connection
	observer observability.Observer
	logger   Logger

	mu sync.Mutex

	group      *kafka.ConsumerGroup
	generation *kafka.Generation
	joined     chan struct{}
	seeks      map[partitionKey]int64

	runs    map[partitionKey]*partitionRun
	epoch   int64
	fetched chan fetchResult
	stop    context.CancelFunc
	running sync.WaitGroup

	last      map[partitionKey]int64
	committed map[partitionKey]int64
	pending   []*Event

	commits sync.WaitGroup
	closed  bool
}

// NewReaderConsumer returns an idle consumer. Nothing is dialed until Subscribe or Assign.
func NewReaderConsumer(cfg ConsumerSettings, observer observability.Observer, logger Logger) (*ReaderConsumer, error) {
	conn, err := newConnection(cfg.Brokers(), cfg.ClientID, cfg.SecuritySettings)
	if err != nil {
		return nil, err
	}

	return &ReaderConsumer{
		cfg:       cfg,
		conn:      conn,
		observer:  observer,
		logger:    logger,
		last:      make(map[partitionKey]int64),
		committed: make(map[partitionKey]int64),
	}, nil
}

// Subscribe joins the consumer group for topics, replacing any assignment. The
// partitions arrive with the first generation; Assignment waits for it.
func (c *ReaderConsumer) Subscribe(ctx context.Context, topics []string) error {
	if c.cfg.GroupID == "" {
		return fmt.Errorf("%w: group.id is required to subscribe", ErrInvalidConfig)
	}
	if c.isClosed() {
		return ErrClosed
	}
	c.detach()

	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:                c.cfg.GroupID,
		Brokers:           c.conn.brokers,
		Dialer:            c.conn.dialer(),
		Topics:            slices.Clone(topics),
		StartOffset:       c.cfg.StartOffset(),
		SessionTimeout:    millis(c.cfg.SessionTimeoutMs, DefaultSessionTimeout),
		HeartbeatInterval: millis(c.cfg.HeartbeatIntervalMs, DefaultHeartbeatInterval),
		ErrorLogger:       createErrorLogger(c.logger),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = group.Close()
		return ErrClosed
	}

	runCtx := c.attachLocked()
	c.group = group
	c.joined = make(chan struct{})
	c.seeks = make(map[partitionKey]int64)

	c.running.Add(1)
	go c.runGroup(runCtx, group, c.fetched)

	if c.cfg.EnableAutoCommit {
		c.running.Add(1)
		go c.autoCommit(runCtx, millis(c.cfg.AutoCommitIntervalMs, DefaultCommitInterval))
	}

	logInfo(c.logger, ctx, "Kafka consumer subscribed", map[string]interface{}{
		"group_id": c.cfg.GroupID,
		"topics":   topics,
	})
	return nil
}

// Assign reads exactly the given partitions, starting at each Offset.
func (c *ReaderConsumer) Assign(ctx context.Context, partitions []TopicPartition) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.detach()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	runCtx := c.attachLocked()

	for _, tp := range partitions {
		key := partitionKey{tp.Topic, tp.Partition}
		if err := c.launchLocked(key, tp.Offset); err != nil {
			return err
		}
		c.running.Add(1)
		go c.follow(runCtx, key, c.fetched)
	}

	logInfo(c.logger, ctx, "Kafka consumer assigned partitions", map[string]interface{}{
		"partitions": len(partitions),
	})
	return nil
}

// attachLocked prepares an empty set of partition runs and returns the context
// that lives until the next detach.
func (c *ReaderConsumer) attachLocked() context.Context {
	runCtx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.fetched = make(chan fetchResult)
	c.runs = make(map[partitionKey]*partitionRun)
	return runCtx
}

// detach leaves the group and stops every partition run. It must be called
// without holding mu.
func (c *ReaderConsumer) detach() {
	c.mu.Lock()
	group, stop, runs := c.group, c.stop, c.runs
	c.group, c.generation, c.joined, c.seeks = nil, nil, nil, nil
	c.stop = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, run := range runs {
		run.cancel()
	}
	if group != nil {
		if err := group.Close(); err != nil {
			logWarn(c.logger, context.Background(), "Failed to leave Kafka consumer group", err, nil)
		}
	}
	c.running.Wait()

	c.mu.Lock()
	for _, run := range c.runs {
		c.retireLocked(run)
	}
	c.runs = nil
	c.fetched = nil
	c.last = make(map[partitionKey]int64)
	c.committed = make(map[partitionKey]int64)
	c.pending = nil
	c.mu.Unlock()
}

// launchLocked opens a Reader for key at offset and makes it the partition's
// current run, replacing any previous one.
func (c *ReaderConsumer) launchLocked(key partitionKey, offset int64) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.conn.brokers,
		Topic:       key.topic,
		Partition:   key.partition,
		MinBytes:    c.cfg.FetchMinBytes,
		MaxBytes:    c.cfg.FetchMaxBytes,
		MaxWait:     millis(c.cfg.FetchWaitMaxMs, DefaultMaxWait),
		Dialer:      c.conn.dialer(),
		ErrorLogger: createErrorLogger(c.logger),
	})
	if err := reader.SetOffset(offset); err != nil {
		_ = reader.Close()
		return TranslateError(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.epoch++
	if previous, ok := c.runs[key]; ok {
		c.retireLocked(previous)
	}
	c.runs[key] = &partitionRun{reader: reader, start: offset, epoch: c.epoch, ctx: ctx, cancel: cancel}
	return nil
}

// retireLocked stops run. A reader no follow goroutine picked up is closed here;
// otherwise its goroutine closes it.
func (c *ReaderConsumer) retireLocked(run *partitionRun) {
	run.cancel()
	if !run.followed {
		run.followed = true
		_ = run.reader.Close()
	}
}

// follow reads key until ctx ends, switching to each run that replaces the
// current one. In group mode it runs under Generation.Start, which ends the
// generation once follow returns.
func (c *ReaderConsumer) follow(ctx context.Context, key partitionKey, out chan<- fetchResult) {
	defer c.running.Done()

	var previous *partitionRun
	for {
		c.mu.Lock()
		run := c.runs[key]
		if run != nil && run != previous {
			if run.followed {
				// owned by another goroutine, as with a partition assigned twice
				run = nil
			} else {
				run.followed = true
			}
		}
		c.mu.Unlock()
		if run == nil || run == previous {
			return
		}
		previous = run

		readCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(run.ctx, cancel)
		failed := c.readPartition(readCtx, key, run, out)
		stop()
		cancel()
		_ = run.reader.Close()

		if failed || ctx.Err() != nil {
			return
		}
	}
}

// readPartition forwards messages until ctx ends. It reports true after handing
// a read error to Poll.
func (c *ReaderConsumer) readPartition(ctx context.Context, key partitionKey, run *partitionRun, out chan<- fetchResult) bool {
	for {
		msg, err := run.reader.ReadMessage(ctx)
		if err != nil && ctx.Err() != nil {
			return false
		}
		select {
		case out <- fetchResult{key: key, epoch: run.epoch, msg: msg, err: err}:
		case <-ctx.Done():
			return false
		}
		if err != nil {
			return true
		}
	}
}

// runGroup starts the partitions of every generation this member joins.
func (c *ReaderConsumer) runGroup(ctx context.Context, group *kafka.ConsumerGroup, out chan<- fetchResult) {
	defer c.running.Done()
	for {
		gen, err := group.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				return
			}
			select {
			case out <- fetchResult{err: err}:
			case <-ctx.Done():
				return
			}
			continue
		}
		c.startGeneration(ctx, group, gen)
	}
}

// startGeneration replaces the partition runs with the generation's assignment. A
// partition moved by Seek and not committed since resumes at the seek target.
func (c *ReaderConsumer) startGeneration(ctx context.Context, group *kafka.ConsumerGroup, gen *kafka.Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group != group {
		return
	}

	owned := make(map[partitionKey]int64)
	for topic, assignments := range gen.Assignments {
		for _, assignment := range assignments {
			owned[partitionKey{topic, assignment.ID}] = assignment.Offset
		}
	}
	for key := range c.seeks {
		if _, ok := owned[key]; !ok {
			delete(c.seeks, key)
		}
	}
	for key := range c.last {
		if _, ok := owned[key]; !ok {
			delete(c.last, key)
			delete(c.committed, key)
		}
	}
	for _, run := range c.runs {
		c.retireLocked(run)
	}
	c.runs = make(map[partitionKey]*partitionRun, len(owned))
	c.generation = gen

	keys := make([]partitionKey, 0, len(owned))
	for key := range owned {
		keys = append(keys, key)
	}
	sortKeys(keys)

	out := c.fetched
	for _, key := range keys {
		offset := owned[key]
		if seek, ok := c.seeks[key]; ok {
			offset = seek
		}
		if err := c.launchLocked(key, offset); err != nil {
			logWarn(c.logger, ctx, "Failed to start Kafka partition reader", err, map[string]interface{}{
				"topic":     key.topic,
				"partition": key.partition,
			})
			continue
		}
		c.running.Add(1)
		gen.Start(func(genCtx context.Context) {
			c.follow(genCtx, key, out)
		})
	}

	select {
	case <-c.joined:
	default:
		close(c.joined)
	}

	logInfo(c.logger, ctx, "Kafka consumer group generation started", map[string]interface{}{
		"group_id":      c.cfg.GroupID,
		"generation_id": gen.ID,
		"partitions":    len(keys),
	})
}

func (c *ReaderConsumer) autoCommit(ctx context.Context, interval time.Duration) {
	defer c.running.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Commit(ctx, false); err != nil && ctx.Err() == nil {
				logWarn(c.logger, ctx, "Auto offset commit failed", err, map[string]interface{}{
					"group_id": c.cfg.GroupID,
				})
			}
		}
	}
}

func (c *ReaderConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Assignment returns the owned partitions, each with the offset its reader started
// at. After Subscribe it waits until the group hands this member its first
// generation, so every member of a group sees only its own share.
func (c *ReaderConsumer) Assignment(ctx context.Context) ([]TopicPartition, error) {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()

	if joined != nil {
		select {
		case <-joined:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	keys := make([]partitionKey, 0, len(c.runs))
	for key := range c.runs {
		keys = append(keys, key)
	}
	sortKeys(keys)

	out := make([]TopicPartition, 0, len(keys))
	for _, key := range keys {
		out = append(out, TopicPartition{Topic: key.topic, Partition: key.partition, Offset: c.runs[key].start})
	}
	return out, nil
}

// Seek restarts each owned partition at its Offset without leaving the group.
// Messages fetched before the seek are dropped. In group mode the target also
// survives a rebalance that keeps the partition here, until the next commit.
func (c *ReaderConsumer) Seek(ctx context.Context, partitions []TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	moved := make(map[partitionKey]bool, len(partitions))
	for _, tp := range partitions {
		key := partitionKey{tp.Topic, tp.Partition}
		if _, ok := c.runs[key]; !ok {
			return fmt.Errorf("seek %s[%d]: %w", tp.Topic, tp.Partition, ErrPartitionNotFound)
		}
		if err := c.launchLocked(key, tp.Offset); err != nil {
			return fmt.Errorf("seek %s[%d]: %w", tp.Topic, tp.Partition, err)
		}
		if c.seeks != nil {
			c.seeks[key] = tp.Offset
		}
		delete(c.last, key)
		delete(c.committed, key)
		moved[key] = true
	}

	c.pending = slices.DeleteFunc(c.pending, func(event *Event) bool {
		return moved[partitionKey{event.Partition.Topic, event.Partition.Partition}]
	})

	logInfo(c.logger, ctx, "Kafka consumer seeked partitions", map[string]interface{}{
		"partitions": len(partitions),
	})
	return nil
}

// Partitions lists the partition ids of topic.
func (c *ReaderConsumer) Partitions(ctx context.Context, topic string) ([]int, error) {
	return c.conn.partitions(ctx, topic)
}

// Poll waits up to timeout for the next event.
func (c *ReaderConsumer) Poll(ctx context.Context, timeout time.Duration) *Event {
	start := time.Now()

	c.mu.Lock()
	if len(c.pending) > 0 {
		event := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return event
	}
	fetched, closed := c.fetched, c.closed
	c.mu.Unlock()

	if closed {
		return &Event{Kind: EventError, Err: ErrClosed}
	}
	if fetched == nil {
		return &Event{Kind: EventError, Err: ErrNotSubscribed}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var result fetchResult
		select {
		case result = <-fetched:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}

		if event, ok := c.accept(result, start); ok {
			return event
		}
	}
}

// accept turns a fetch result into an event, or reports false when it came from a
// run that has since been replaced.
func (c *ReaderConsumer) accept(result fetchResult, start time.Time) (*Event, bool) {
	msg, err := result.msg, result.err

	c.mu.Lock()
	if result.epoch != 0 {
		if run, ok := c.runs[result.key]; !ok || run.epoch != result.epoch {
			c.mu.Unlock()
			return nil, false
		}
	}
	if err == nil {
		key := partitionKey{msg.Topic, msg.Partition}
		c.last[key] = msg.Offset
		if c.cfg.EnablePartitionEOF && msg.HighWaterMark > 0 && msg.Offset+1 >= msg.HighWaterMark {
			c.pending = append(c.pending, &Event{
				Kind:      EventPartitionEOF,
				Partition: TopicPartition{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset + 1},
			})
		}
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrClosed
		}
		err = TranslateError(err)
		observeOperation(c.observer, "poll", result.key.topic, -1, time.Since(start), err, 0)
		return &Event{Kind: EventError, Err: err}, true
	}

	observeOperation(c.observer, "poll", msg.Topic, msg.Partition, time.Since(start), nil, int64(len(msg.Value)))
	return &Event{Kind: EventMessage, Message: fromKafkaMessage(msg)}, true
}

// Commit stores the position after the last polled message of each partition.
// With async the commit runs in the background and failures are only logged.
func (c *ReaderConsumer) Commit(ctx context.Context, async bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	grouped, gen := c.group != nil, c.generation
	offsets := make(map[partitionKey]int64)
	for key, offset := range c.last {
		if committed, ok := c.committed[key]; ok && committed > offset {
			continue
		}
		offsets[key] = offset
		c.committed[key] = offset + 1
		delete(c.seeks, key)
	}
	c.mu.Unlock()

	if len(offsets) == 0 || (grouped && gen == nil) {
		return nil
	}

	commit := func(ctx context.Context) error {
		start := time.Now()
		var err error
		if grouped {
			err = gen.CommitOffsets(generationOffsets(offsets))
		} else {
			err = c.commitAssigned(ctx, offsets)
		}
		err = TranslateError(err)
		observeOperation(c.observer, "commit", c.cfg.GroupID, -1, time.Since(start), err, int64(len(offsets)))
		return err
	}

	if !async {
		return commit(ctx)
	}

	c.commits.Add(1)
	go func() {
		defer c.commits.Done()
		if err := commit(context.WithoutCancel(ctx)); err != nil {
			logWarn(c.logger, ctx, "Async offset commit failed", err, map[string]interface{}{
				"group_id": c.cfg.GroupID,
			})
		}
	}()
	return nil
}

// generationOffsets converts last-read offsets into the next offsets to read.
func generationOffsets(offsets map[partitionKey]int64) map[string]map[int]int64 {
	out := make(map[string]map[int]int64)
	for key, offset := range offsets {
		if out[key.topic] == nil {
			out[key.topic] = make(map[int]int64)
		}
		out[key.topic][key.partition] = offset + 1
	}
	return out
}

func (c *ReaderConsumer) commitAssigned(ctx context.Context, offsets map[partitionKey]int64) error {
	if c.cfg.GroupID == "" {
		return nil
	}

	topics := make(map[string][]kafka.OffsetCommit)
	for key, offset := range offsets {
		topics[key.topic] = append(topics[key.topic], kafka.OffsetCommit{
			Partition: key.partition,
			Offset:    offset + 1,
		})
	}

	resp, err := c.conn.client().OffsetCommit(ctx, &kafka.OffsetCommitRequest{
		GroupID:      c.cfg.GroupID,
		GenerationID: -1,
		Topics:       topics,
	})
	if err != nil {
		return err
	}
	for _, partitions := range resp.Topics {
		for _, p := range partitions {
			if p.Error != nil {
				return p.Error
			}
		}
	}
	return nil
}

// OffsetsForTimes resolves the timestamp in milliseconds held in each Offset.
func (c *ReaderConsumer) OffsetsForTimes(ctx context.Context, partitions []TopicPartition) ([]TopicPartition, error) {
	out := make([]TopicPartition, 0, len(partitions))
	for _, tp := range partitions {
		offset, err := c.conn.offsetAt(ctx, tp, time.UnixMilli(tp.Offset))
		if err != nil {
			return nil, fmt.Errorf("offset for %s[%d]: %w", tp.Topic, tp.Partition, err)
		}
		out = append(out, TopicPartition{Topic: tp.Topic, Partition: tp.Partition, Offset: offset})
	}
	return out, nil
}

// Positions returns the next offset to read for each partition in the assignment.
func (c *ReaderConsumer) Positions(ctx context.Context) ([]TopicPartition, error) {
	assignment, err := c.Assignment(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]TopicPartition, 0, len(assignment))
	for _, tp := range assignment {
		key := partitionKey{tp.Topic, tp.Partition}
		if last, ok := c.last[key]; ok {
			tp.Offset = last + 1
		} else if run, ok := c.runs[key]; ok {
			tp.Offset = run.reader.Offset()
		}
		out = append(out, tp)
	}
	return out, nil
}

// Close waits for in-flight async commits, leaves the group and closes every reader.
func (c *ReaderConsumer) Close() error {
	c.commits.Wait()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.detach()
	return nil
}

func fromKafkaMessage(msg kafka.Message) *Message {
	headers := make([]Header, 0, len(msg.Headers))
	for _, h := range msg.Headers {
		headers = append(headers, Header{Key: h.Key, Value: h.Value})
	}
	return &Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: msg.Time,
	}
}

func sortKeys(keys []partitionKey) {
	slices.SortFunc(keys, func(a, b partitionKey) int {
		if a.topic != b.topic {
			if a.topic < b.topic {
				return -1
			}
			return 1
		}
		return a.partition - b.partition
	})
}
