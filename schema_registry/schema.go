package schema_registry

import (
	"context"
	"errors"
	"sync"
)

// Schema binds a local raw schema to a registry subject. The id is resolved lazily
// on first use and never changes afterwards.
type Schema struct {
	// Subject the schema is registered under, such as "orders-value"
	Subject string

	// Raw is the local schema text
	Raw string

	// Type is SchemaTypeAvro for schemas built by NewSchema
	Type string

	registry Registry

	mu sync.Mutex
	id int

	// version is -1 until a lookup or registration reports it
	version  int
	resolved bool
}

// NewSchema returns an Avro schema for subject backed by registry. Nothing is
// resolved until GetLatest, Register or Update is called.
//
// Example:
//
//	schema := schema_registry.NewSchema(client, "orders-value", orderSchema)
//	id, err := schema.GetLatest(ctx)
func NewSchema(registry Registry, subject, raw string) *Schema {
	return &Schema{
		Subject:  subject,
		Raw:      raw,
		Type:     SchemaTypeAvro,
		registry: registry,
		version:  -1,
	}
}

// ID returns the resolved schema id and whether it has been resolved.
func (s *Schema) ID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.resolved
}

// Version returns the registered version, or -1 when unknown.
func (s *Schema) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// GetLatest returns the schema id to encode with. It prefers the cached id, then the
// latest version registered for the subject, and registers the local schema when the
// subject has none.
func (s *Schema) GetLatest(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return s.id, nil
	}

	metadata, err := s.registry.GetLatestSchema(ctx, s.Subject)
	if errors.Is(err, ErrSubjectNotFound) {
		return s.registerLocked(ctx)
	}
	if err != nil {
		return 0, err
	}

	s.id, s.version, s.resolved = metadata.ID, metadata.Version, true
	return s.id, nil
}

// Register registers the local schema under the subject and caches its id.
func (s *Schema) Register(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(ctx)
}

// registerLocked registers the schema, then looks it up to learn the version the
// registry gave it. A failed lookup leaves the version unknown.
func (s *Schema) registerLocked(ctx context.Context) (int, error) {
	id, err := s.registry.RegisterSchema(ctx, s.Subject, s.Raw, s.Type)
	if err != nil {
		return 0, err
	}
	s.id, s.resolved = id, true

	if metadata, err := s.registry.LookupSchema(ctx, s.Subject, s.Raw, s.Type); err == nil {
		s.version = metadata.Version
	}
	return id, nil
}

// AlreadyExists reports whether the registry holds the identical schema under the subject.
func (s *Schema) AlreadyExists(ctx context.Context) (bool, error) {
	metadata, err := s.registry.LookupSchema(ctx, s.Subject, s.Raw, s.Type)
	if errors.Is(err, ErrSchemaNotFound) || errors.Is(err, ErrSubjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.version = metadata.Version
	s.mu.Unlock()
	return metadata.Version > -1, nil
}

// TestCompatibility checks the local schema against the latest registered version.
func (s *Schema) TestCompatibility(ctx context.Context) (bool, error) {
	return s.registry.CheckCompatibility(ctx, s.Subject, s.Raw, s.Type)
}

// Update registers the local schema when it is new and compatible. It returns false
// when the schema is already registered, and a *SchemaIncompatibleError without
// registering when it is incompatible.
func (s *Schema) Update(ctx context.Context) (bool, error) {
	exists, err := s.AlreadyExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	compatible, err := s.TestCompatibility(ctx)
	if err != nil {
		return false, err
	}
	if !compatible {
		return false, &SchemaIncompatibleError{Subject: s.Subject}
	}

	if _, err := s.Register(ctx); err != nil {
		return false, err
	}
	return true, nil
}
