package producer

import (
	"context"
	"time"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// observe reports an operation with the topic as resource and the producer name
// as sub-resource.
func (p *Producer) observe(operation string, duration time.Duration, err error) {
	if p.cfg.Observer == nil {
		return
	}
	p.cfg.Observer.ObserveOperation(observability.OperationContext{
		Component:   "producer",
		Operation:   operation,
		Resource:    p.cfg.Topic,
		SubResource: p.cfg.Name,
		Duration:    duration,
		Error:       err,
	})
}

// fields prefixes extra with the producer's identity.
func (p *Producer) fields(extra map[string]interface{}) []map[string]interface{} {
	base := map[string]interface{}{
		"producer": p.cfg.Name,
		"topic":    p.cfg.Topic,
	}
	if extra == nil {
		return []map[string]interface{}{base}
	}
	return []map[string]interface{}{base, extra}
}

func (p *Producer) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.InfoWithContext(ctx, msg, nil, p.fields(fields)...)
	}
}

func (p *Producer) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.WarnWithContext(ctx, msg, err, p.fields(fields)...)
	}
}

func (p *Producer) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.ErrorWithContext(ctx, msg, err, p.fields(fields)...)
	}
}
