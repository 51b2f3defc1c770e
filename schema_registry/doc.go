// Package schema_registry provides a Confluent Schema Registry client and the Avro
// message codec used by Kafka workers.
//
// # Client
//
// Client talks to the registry over HTTP, caching schemas by id and ids by subject
// and content. Transport failures, timeouts, 429 and 5xx responses are retried with
// exponential backoff; once retries are exhausted they surface as a
// *SchemaRegistryError whose Retryable method reports true.
//
//	client, err := schema_registry.NewClient(schema_registry.Config{
//	    URL: "http://localhost:8081",
//	})
//
// # Schema
//
// Schema binds a local Avro definition to a subject. GetLatest resolves the id to
// encode with, registering the local schema when the subject is empty. Update only
// registers compatible schemas:
//
//	schema := schema_registry.NewSchema(client, "orders-value", orderSchema)
//	id, err := schema.GetLatest(ctx)
//
// # Codec
//
// Codec writes the Confluent wire format:
//
//	[magic byte 0x0] [schema id, 4 bytes big-endian] [avro binary body]
//
// Decode resolves the writer schema from the embedded id, so records written with an
// older or newer registered schema decode without the reader knowing it.
//
//	codec := schema_registry.NewCodec(client)
//	data, err := codec.Encode(ctx, id, map[string]any{"id": int64(7)})
//	record, writerID, err := codec.Decode(ctx, data)
//
// # Observability
//
// Both Client and Codec accept an observability.Observer. Events use component
// "schema_registry" with operations get_schema_by_id, get_latest_schema,
// register_schema, lookup_schema, check_compatibility, encode and decode.
package schema_registry
