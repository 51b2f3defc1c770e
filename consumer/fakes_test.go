package consumer

import (
	"context"
	"sync"

	"github.com/aalemi-dev/kafka-workers/tracer"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []*Message
	ends     []PartitionEnd
	err      error
}

func (h *recordingHandler) ConsumeMessage(_ context.Context, msg *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return h.err
}

func (h *recordingHandler) PartitionEOF(_ context.Context, end PartitionEnd) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends = append(h.ends, end)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

type fakeSpan struct {
	name  string
	attrs map[string]interface{}
	errs  []error
	ended bool
}

func (s *fakeSpan) End()                                       { s.ended = true }
func (s *fakeSpan) SetAttributes(attrs map[string]interface{}) { s.attrs = attrs }
func (s *fakeSpan) RecordError(err error)                      { s.errs = append(s.errs, err) }

type fakeTracer struct {
	spans    []*fakeSpan
	carriers []map[string]string
}

func (t *fakeTracer) StartSpan(ctx context.Context, name string) (context.Context, tracer.Span) {
	span := &fakeSpan{name: name}
	t.spans = append(t.spans, span)
	return ctx, span
}

func (t *fakeTracer) GetCarrier(context.Context) map[string]string { return map[string]string{} }

func (t *fakeTracer) SetCarrierOnContext(ctx context.Context, carrier map[string]string) context.Context {
	t.carriers = append(t.carriers, carrier)
	return ctx
}
