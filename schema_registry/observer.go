package schema_registry

import (
	"strconv"
	"time"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// registryResource is the resource reported for calls not bound to a subject.
const registryResource = "registry"

// observe reports one registry call. subject is empty for id lookups; ref is the
// schema id, a version or "latest".
func (c *Client) observe(operation, subject, ref string, start time.Time, err error, metadata map[string]interface{}) {
	if c == nil || c.observer == nil {
		return
	}
	if subject == "" {
		subject = registryResource
	}

	c.observer.ObserveOperation(observability.OperationContext{
		Component:   "schema_registry",
		Operation:   operation,
		Resource:    subject,
		SubResource: ref,
		Duration:    time.Since(start),
		Error:       err,
		Metadata:    metadata,
	})
}

// cacheHit is the metadata of calls answered from a cache or the registry.
func cacheHit(hit bool) map[string]interface{} {
	return map[string]interface{}{"cache_hit": hit}
}

// schemaRef returns "" for ids not yet known.
func schemaRef(id int) string {
	if id <= 0 {
		return ""
	}
	return strconv.Itoa(id)
}
