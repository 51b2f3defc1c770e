package schema_registry

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSubjectNotFound is returned when the registry has no versions for a subject.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrSchemaNotFound is returned when a schema id, or a schema under a subject, is unknown.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrInvalidWireFormat is returned when a payload is too short or lacks the magic byte.
	ErrInvalidWireFormat = errors.New("invalid wire format")

	// ErrEncode is returned when a record does not conform to its schema.
	ErrEncode = errors.New("avro encode failed")

	// ErrDecode is returned when a payload body cannot be decoded with its writer schema.
	ErrDecode = errors.New("avro decode failed")

	// ErrInvalidSchema is returned when a raw schema cannot be compiled.
	ErrInvalidSchema = errors.New("invalid avro schema")
)

// SchemaRegistryError reports a failed call to the registry.
//
// Transport failures, timeouts, 429 and 5xx responses are retryable. The client
// retries them itself, so a retryable SchemaRegistryError returned to a caller means
// retries were exhausted.
type SchemaRegistryError struct {
	// Op names the call, such as "register" or "get schema"
	Op string

	// Subject is empty for calls by schema ID
	Subject string

	// StatusCode is 0 when no response was received
	StatusCode int

	Err error
}

// Error returns the error message.
func (e *SchemaRegistryError) Error() string {
	target := e.Subject
	if target == "" {
		target = "registry"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("schema registry %s %s: status %d: %v", e.Op, target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("schema registry %s %s: %v", e.Op, target, e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaRegistryError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *SchemaRegistryError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// SchemaIncompatibleError is returned by Schema.Update when the local schema is not
// compatible with the latest registered version. Nothing is registered.
type SchemaIncompatibleError struct {
	// Subject the schema was checked against
	Subject string
}

// Error returns the error message.
func (e *SchemaIncompatibleError) Error() string {
	return fmt.Sprintf("schema for subject %q is incompatible with the latest registered version", e.Subject)
}

// IsRetryable reports whether err is a retryable SchemaRegistryError.
func IsRetryable(err error) bool {
	var regErr *SchemaRegistryError
	return errors.As(err, &regErr) && regErr.Retryable()
}

// IsIncompatible reports whether err is a SchemaIncompatibleError.
func IsIncompatible(err error) bool {
	var incompatible *SchemaIncompatibleError
	return errors.As(err, &incompatible)
}
