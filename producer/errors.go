package producer

import "errors"

var (
	// ErrMissingKey is returned when a keyed producer is given no key.
	ErrMissingKey = errors.New("message key is required")

	// ErrInvalidValue is returned when a message part has no schema and is neither
	// []byte nor string.
	ErrInvalidValue = errors.New("message part must be []byte or string without a schema")

	// ErrMissingConfig is returned when a required setting is absent.
	ErrMissingConfig = errors.New("missing producer configuration")

	// ErrProducerClosed is returned by sends on a closed producer.
	ErrProducerClosed = errors.New("producer closed")

	// ErrAlreadyRegistered is returned when a producer name is registered twice.
	ErrAlreadyRegistered = errors.New("producer already registered")

	// ErrNotRegistered is returned for unknown producer names.
	ErrNotRegistered = errors.New("producer not registered")
)
