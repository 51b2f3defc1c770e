package observability

import "time"

// Observer receives a notification every time a component finishes an operation.
// Components work without one; a nil Observer is never called.
//
// Implementations must be safe for concurrent use. Every supervised worker reports
// from its own goroutine.
type Observer interface {
	// ObserveOperation is called once per completed operation.
	ObserveOperation(ctx OperationContext)
}

// OperationContext describes a single completed operation.
type OperationContext struct {
	// Component identifies the package that performed the operation.
	// Values used in this module: "kafka", "schema_registry", "consumer", "producer", "worker".
	Component string

	// Operation names what was done, for example "poll", "commit", "consume",
	// "produce", "flush", "register_schema", "attempt_failed".
	Operation string

	// Resource is the primary resource: a topic, a subject, or a worker name.
	Resource string

	// SubResource adds optional detail such as a partition number or schema id.
	SubResource string

	// Duration is the wall time of the operation.
	Duration time.Duration

	// Error is nil for successful operations.
	Error error

	// Size is the payload size in bytes or the number of messages, when known.
	Size int64

	// Metadata carries anything that does not fit the fields above.
	Metadata map[string]interface{}
}

// Status returns "success" or "error" depending on whether the operation failed.
func (c OperationContext) Status() string {
	if c.Error != nil {
		return "error"
	}
	return "success"
}
