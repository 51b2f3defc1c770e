// Package tracer wraps OpenTelemetry tracing for the worker framework.
//
// Producers call GetCarrier and copy the returned pairs into Kafka message headers.
// Consumers call SetCarrierOnContext with the headers of each message and start a
// "kafka:consume" span, so a trace started by an upstream service continues through
// every worker that handles the message.
//
//	t, _ := tracer.NewClient(tracer.Config{ServiceName: "billing-workers"})
//	ctx = t.SetCarrierOnContext(ctx, carrierFromHeaders)
//	ctx, span := t.StartSpan(ctx, "kafka:consume")
//	defer span.End()
package tracer
