package kafkatest

import (
	"context"
	"slices"
	"sync"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// Producer records produced records in memory.
type Producer struct {
	mu sync.Mutex

	records []kafka.Record
	calls   int
	flushes int
	closed  bool
	offsets map[int]int64

	// PartitionIDs lists partitions per topic. Topics not listed have partitions 0..3.
	PartitionIDs map[string][]int

	// Fail, when set, decides the error of each record. Returning an error leaves
	// the record unrecorded. Like a broker, a partition's records in one call are
	// written as a unit: later records of a failed partition fail with the same error
	// without consulting Fail.
	Fail func(rec kafka.Record) error

	// Gate, when set, blocks every Produce call until it is closed or receives.
	Gate chan struct{}
}

var _ kafka.Producer = (*Producer)(nil)

// NewProducer returns an empty producer.
func NewProducer() *Producer {
	return &Producer{offsets: make(map[int]int64)}
}

func (p *Producer) Produce(ctx context.Context, records []kafka.Record, onDelivery kafka.DeliveryFunc) error {
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return kafka.ErrClosed
	}
	p.calls++

	var firstErr error
	failed := make(map[int]error)
	reports := make([]kafka.DeliveryReport, 0, len(records))
	for _, rec := range records {
		report := kafka.DeliveryReport{Record: rec, Partition: rec.Partition, Offset: -1}
		if err, ok := failed[rec.Partition]; ok {
			report.Err = err
		} else if p.Fail != nil {
			report.Err = p.Fail(rec)
		}
		if report.Err != nil {
			failed[rec.Partition] = report.Err
		}
		if report.Err == nil {
			report.Offset = p.offsets[rec.Partition]
			p.offsets[rec.Partition]++
			p.records = append(p.records, rec)
		} else if firstErr == nil {
			firstErr = report.Err
		}
		reports = append(reports, report)
	}
	p.mu.Unlock()

	if onDelivery != nil {
		for _, report := range reports {
			onDelivery(report)
		}
	}
	return firstErr
}

func (p *Producer) Partitions(_ context.Context, topic string) ([]int, error) {
	if ids, ok := p.PartitionIDs[topic]; ok {
		return slices.Clone(ids), nil
	}
	return []int{0, 1, 2, 3}, nil
}

func (p *Producer) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Records returns every successfully produced record in order.
func (p *Producer) Records() []kafka.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.records)
}

// Calls returns how many times Produce reached the broker.
func (p *Producer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Flushes returns how many times Flush was called.
func (p *Producer) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Closed reports whether Close was called.
func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
