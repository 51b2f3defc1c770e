// Package registrytest provides an in-memory schema registry for tests.
package registrytest

import (
	"context"
	"sync"

	"github.com/aalemi-dev/kafka-workers/schema_registry"
)

type version struct {
	id     int
	schema string
}

// Memory is a schema_registry.Registry kept in memory. Ids are global and identical
// schemas share one id, as in the real registry.
type Memory struct {
	mu       sync.Mutex
	ids      map[string]int
	schemas  map[int]string
	subjects map[string][]version

	// Incompatible makes CheckCompatibility reject every schema.
	Incompatible bool
}

var _ schema_registry.Registry = (*Memory)(nil)

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{
		ids:      make(map[string]int),
		schemas:  make(map[int]string),
		subjects: make(map[string][]version),
	}
}

// Add registers schema under subject and returns its id.
func (m *Memory) Add(subject, schema string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(subject, schema)
}

func (m *Memory) addLocked(subject, schema string) int {
	id, ok := m.ids[schema]
	if !ok {
		id = len(m.ids) + 1
		m.ids[schema] = id
		m.schemas[id] = schema
	}
	for _, v := range m.subjects[subject] {
		if v.id == id {
			return id
		}
	}
	m.subjects[subject] = append(m.subjects[subject], version{id: id, schema: schema})
	return id
}

// Versions returns the number of versions registered under subject.
func (m *Memory) Versions(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects[subject])
}

// LatestID returns the id of the latest version of subject.
func (m *Memory) LatestID(subject string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.subjects[subject]
	if len(versions) == 0 {
		return 0, false
	}
	return versions[len(versions)-1].id, true
}

func (m *Memory) GetSchemaByID(_ context.Context, id int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if schema, ok := m.schemas[id]; ok {
		return schema, nil
	}
	return "", schema_registry.ErrSchemaNotFound
}

func (m *Memory) GetLatestSchema(_ context.Context, subject string) (*schema_registry.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.subjects[subject]
	if len(versions) == 0 {
		return nil, schema_registry.ErrSubjectNotFound
	}
	latest := versions[len(versions)-1]
	return &schema_registry.Metadata{Subject: subject, ID: latest.id, Version: len(versions), Schema: latest.schema}, nil
}

func (m *Memory) RegisterSchema(_ context.Context, subject, schema, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(subject, schema), nil
}

func (m *Memory) LookupSchema(_ context.Context, subject, schema, _ string) (*schema_registry.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions, ok := m.subjects[subject]
	if !ok {
		return nil, schema_registry.ErrSubjectNotFound
	}
	for i, v := range versions {
		if v.schema == schema {
			return &schema_registry.Metadata{Subject: subject, ID: v.id, Version: i + 1, Schema: schema}, nil
		}
	}
	return nil, schema_registry.ErrSchemaNotFound
}

func (m *Memory) CheckCompatibility(context.Context, string, string, string) (bool, error) {
	return !m.Incompatible, nil
}
