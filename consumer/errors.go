package consumer

import "errors"

var (
	// ErrMissingConfig is returned by Setup when a required setting is absent. It is
	// wrapped with worker.Terminal.
	ErrMissingConfig = errors.New("missing consumer configuration")

	// ErrInvalidData is returned when a message payload cannot be decoded.
	ErrInvalidData = errors.New("invalid message data")
)
