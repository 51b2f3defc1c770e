package producer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aalemi-dev/kafka-workers/kafka"
)

// deliver drains the queue until Close closes it. Each pass takes whatever is
// queued, up to BatchSize, and writes it in one call.
func (p *Producer) deliver() {
	defer close(p.stopped)

	for env := range p.queue {
		batch := []*envelope{env}
	fill:
		for len(batch) < p.cfg.BatchSize {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		p.write(batch)
	}
}

// write produces batch, retrying records that failed with a retryable error.
func (p *Producer) write(batch []*envelope) {
	if p.ctx.Err() != nil {
		for _, env := range batch {
			p.complete(env, kafka.DeliveryReport{Record: env.record, Partition: env.record.Partition, Offset: -1, Err: ErrProducerClosed})
		}
		return
	}

	remaining := batch
	err := backoff.Retry(func() error {
		retry, lastErr := p.produce(remaining)
		remaining = retry
		return lastErr
	}, p.cfg.newBackoff(p.ctx))

	for _, env := range remaining {
		if err == nil || p.ctx.Err() != nil {
			err = ErrProducerClosed
		}
		p.complete(env, kafka.DeliveryReport{Record: env.record, Partition: env.record.Partition, Offset: -1, Err: err})
	}
}

// produce writes batch once. It completes every record with a final outcome and
// returns those worth retrying, in batch order, along with the last retryable error.
//
// Once a record fails with a retryable error, every later record of the batch on the
// same partition that did not succeed is held back with it, so a retry never lets a
// later record overtake an earlier one. Backends write the records of one partition
// in a call as a single request, so a later record cannot succeed after an earlier
// one failed.
func (p *Producer) produce(batch []*envelope) ([]*envelope, error) {
	records := make([]kafka.Record, len(batch))
	for i, env := range batch {
		rec := env.record
		rec.Opaque = env
		records[i] = rec
	}

	var (
		mu      sync.Mutex
		reports = make(map[*envelope]kafka.DeliveryReport, len(batch))
	)
	start := time.Now()
	callErr := p.backend.Produce(p.ctx, records, func(report kafka.DeliveryReport) {
		env, ok := report.Record.Opaque.(*envelope)
		if !ok {
			return
		}
		report.Record.Opaque = nil

		mu.Lock()
		reports[env] = report
		mu.Unlock()
	})
	p.observe("produce", time.Since(start), callErr)

	mu.Lock()
	defer mu.Unlock()

	var (
		retry   []*envelope
		lastErr error
		blocked = make(map[int]bool)
	)
	for _, env := range batch {
		report, ok := reports[env]
		if !ok {
			// The backend failed the call before reporting this record.
			err := callErr
			if err == nil {
				err = kafka.ErrClosed
			}
			report = kafka.DeliveryReport{Record: env.record, Partition: env.record.Partition, Offset: -1, Err: err}
		}

		partition := env.record.Partition
		switch {
		case report.Err != nil && kafka.IsRetryableError(report.Err):
			blocked[partition] = true
			retry = append(retry, env)
			lastErr = report.Err
		case report.Err != nil && blocked[partition]:
			retry = append(retry, env)
		default:
			p.complete(env, report)
		}
	}
	return retry, lastErr
}

// complete reports the final outcome of env exactly once. Failures of async sends
// are logged since no caller is waiting for them.
func (p *Producer) complete(env *envelope, report kafka.DeliveryReport) {
	defer p.pending.done()

	if report.Err != nil && env.result == nil {
		p.logError(context.Background(), "Message delivery failed", report.Err, map[string]interface{}{
			"partition": report.Partition,
		})
	}

	p.deliveryMu.RLock()
	fn := p.onDelivery
	p.deliveryMu.RUnlock()
	if fn != nil {
		fn(report)
	}

	if env.result != nil {
		env.result <- report.Err
	}
}

// inflight counts queued and in-flight messages so Flush can wait for zero.
type inflight struct {
	mu sync.Mutex
	n  int

	// idle is closed while n is zero and replaced when n leaves zero
	idle chan struct{}
}

func newInflight() *inflight {
	idle := make(chan struct{})
	close(idle)
	return &inflight{idle: idle}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

// wait returns once n reaches zero or ctx is done.
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
