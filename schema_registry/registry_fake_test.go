package schema_registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeVersion struct {
	id      int
	version int
	schema  string
}

// fakeRegistry is an in-memory Confluent registry served over httptest.
type fakeRegistry struct {
	mu       sync.Mutex
	nextID   int
	byID     map[int]string
	subjects map[string][]fakeVersion

	incompatible bool
	failures     int32 // remaining requests answered with 503
	requests     int32
}

func newFakeRegistry(t *testing.T) (*fakeRegistry, *httptest.Server) {
	t.Helper()

	fake := &fakeRegistry{
		nextID:   1,
		byID:     make(map[int]string),
		subjects: make(map[string][]fakeVersion),
	}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.requests, 1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		writeError(w, http.StatusServiceUnavailable, 50003, "unavailable")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.EscapedPath()
	switch {
	case strings.HasPrefix(path, "/schemas/ids/") && r.Method == http.MethodGet:
		id, _ := strconv.Atoi(strings.TrimPrefix(path, "/schemas/ids/"))
		schema, ok := f.byID[id]
		if !ok {
			writeError(w, http.StatusNotFound, 40403, "Schema not found")
			return
		}
		writeJSON(w, map[string]interface{}{"schema": schema})

	case strings.HasPrefix(path, "/compatibility/subjects/") && r.Method == http.MethodPost:
		subject := unescape(strings.TrimSuffix(strings.TrimPrefix(path, "/compatibility/subjects/"), "/versions/latest"))
		if len(f.subjects[subject]) == 0 {
			writeError(w, http.StatusNotFound, 40401, "Subject not found")
			return
		}
		writeJSON(w, map[string]interface{}{"is_compatible": !f.incompatible})

	case strings.HasSuffix(path, "/versions/latest") && r.Method == http.MethodGet:
		subject := unescape(strings.TrimSuffix(strings.TrimPrefix(path, "/subjects/"), "/versions/latest"))
		versions := f.subjects[subject]
		if len(versions) == 0 {
			writeError(w, http.StatusNotFound, 40401, "Subject not found")
			return
		}
		latest := versions[len(versions)-1]
		writeJSON(w, map[string]interface{}{"id": latest.id, "version": latest.version, "schema": latest.schema, "subject": subject})

	case strings.HasSuffix(path, "/versions") && r.Method == http.MethodPost:
		subject := unescape(strings.TrimSuffix(strings.TrimPrefix(path, "/subjects/"), "/versions"))
		schema := readSchema(r)
		for _, v := range f.subjects[subject] {
			if v.schema == schema {
				writeJSON(w, map[string]interface{}{"id": v.id})
				return
			}
		}
		id := f.idFor(schema)
		f.subjects[subject] = append(f.subjects[subject], fakeVersion{id: id, version: len(f.subjects[subject]) + 1, schema: schema})
		writeJSON(w, map[string]interface{}{"id": id})

	case strings.HasPrefix(path, "/subjects/") && r.Method == http.MethodPost:
		subject := unescape(strings.TrimPrefix(path, "/subjects/"))
		versions, ok := f.subjects[subject]
		if !ok {
			writeError(w, http.StatusNotFound, 40401, "Subject not found")
			return
		}
		schema := readSchema(r)
		for _, v := range versions {
			if v.schema == schema {
				writeJSON(w, map[string]interface{}{"id": v.id, "version": v.version, "schema": v.schema, "subject": subject})
				return
			}
		}
		writeError(w, http.StatusNotFound, 40403, "Schema not found")

	default:
		writeError(w, http.StatusNotFound, 404, "not found")
	}
}

func (f *fakeRegistry) idFor(schema string) int {
	for id, s := range f.byID {
		if s == schema {
			return id
		}
	}
	id := f.nextID
	f.nextID++
	f.byID[id] = schema
	return id
}

func (f *fakeRegistry) versionCount(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects[subject])
}

func (f *fakeRegistry) failNext(n int32) {
	atomic.StoreInt32(&f.failures, n)
}

func (f *fakeRegistry) requestCount() int32 {
	return atomic.LoadInt32(&f.requests)
}

func readSchema(r *http.Request) string {
	var body struct {
		Schema string `json:"schema"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Schema
}

func unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", contentType)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error_code": code, "message": message})
}
