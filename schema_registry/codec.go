package schema_registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// Codec encodes and decodes Avro records in the Confluent wire format. Writer schemas
// are resolved through the registry by the id embedded in each payload, so a reader
// never needs the schema the producer used.
type Codec struct {
	registry Registry
	observer observability.Observer

	// codecs caches compiled schemas by id
	mu     sync.RWMutex
	codecs map[int]*goavro.Codec
}

// NewCodec returns a codec that resolves schemas through registry.
//
// Parameters:
//   - registry: Resolves schema ids to raw schemas, usually a *Client
//
// Returns:
//   - *Codec: A codec with an empty schema cache
//
// Example:
//
//	codec := schema_registry.NewCodec(client)
//	payload, err := codec.Encode(ctx, id, map[string]any{"id": int64(1)})
//	if err != nil {
//	    return err
//	}
//	value, id, err := codec.Decode(ctx, payload)
func NewCodec(registry Registry) *Codec {
	return &Codec{
		registry: registry,
		codecs:   make(map[int]*goavro.Codec),
	}
}

// WithObserver sets the operation observer and returns the codec.
func (c *Codec) WithObserver(observer observability.Observer) *Codec {
	c.observer = observer
	return c
}

// Encode serializes record with the schema registered under schemaID. The output
// starts with the wire format header. Encoding failures wrap ErrEncode.
func (c *Codec) Encode(ctx context.Context, schemaID int, record any) ([]byte, error) {
	start := time.Now()

	codec, err := c.codec(ctx, schemaID)
	if err != nil {
		c.observe("encode", schemaID, time.Since(start), 0, err)
		return nil, err
	}

	header := EncodeSchemaID(schemaID, nil)
	out, err := codec.BinaryFromNative(header, record)
	if err != nil {
		err = fmt.Errorf("%w: schema %d: %v", ErrEncode, schemaID, err)
		c.observe("encode", schemaID, time.Since(start), 0, err)
		return nil, err
	}

	c.observe("encode", schemaID, time.Since(start), len(out), nil)
	return out, nil
}

// Decode deserializes data with its writer schema and returns the native value and the
// schema id. The id is returned even when decoding fails past the header.
// Malformed headers wrap ErrInvalidWireFormat; bodies that do not match the writer
// schema wrap ErrDecode.
func (c *Codec) Decode(ctx context.Context, data []byte) (any, int, error) {
	start := time.Now()

	schemaID, body, err := DecodeSchemaID(data)
	if err != nil {
		c.observe("decode", 0, time.Since(start), len(data), err)
		return nil, 0, err
	}

	codec, err := c.codec(ctx, schemaID)
	if err != nil {
		c.observe("decode", schemaID, time.Since(start), len(data), err)
		return nil, schemaID, err
	}

	native, _, err := codec.NativeFromBinary(body)
	if err != nil {
		err = fmt.Errorf("%w: schema %d: %v", ErrDecode, schemaID, err)
		c.observe("decode", schemaID, time.Since(start), len(data), err)
		return nil, schemaID, err
	}

	c.observe("decode", schemaID, time.Since(start), len(data), nil)
	return native, schemaID, nil
}

// codec returns the compiled schema of schemaID, fetching and compiling it once.
func (c *Codec) codec(ctx context.Context, schemaID int) (*goavro.Codec, error) {
	c.mu.RLock()
	codec, ok := c.codecs[schemaID]
	c.mu.RUnlock()
	if ok {
		return codec, nil
	}

	raw, err := c.registry.GetSchemaByID(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	codec, err = goavro.NewCodec(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: schema %d: %v", ErrInvalidSchema, schemaID, err)
	}

	// Concurrent misses compile the same schema; the last one wins
	c.mu.Lock()
	c.codecs[schemaID] = codec
	c.mu.Unlock()
	return codec, nil
}

// observe reports with the schema id as sub-resource and the payload size.
func (c *Codec) observe(operation string, schemaID int, duration time.Duration, size int, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveOperation(observability.OperationContext{
		Component:   "schema_registry",
		Operation:   operation,
		Resource:    "codec",
		SubResource: strconv.Itoa(schemaID),
		Duration:    duration,
		Error:       err,
		Size:        int64(size),
	})
}
