package schema_registry

import (
	"encoding/binary"
	"fmt"
)

const (
	// magicByte is the only wire format version defined
	magicByte = 0x0

	// HeaderSize is the length of the Confluent wire format header: one magic byte
	// followed by a big-endian uint32 schema id.
	HeaderSize = 5
)

// EncodeSchemaID prefixes payload with the wire format header for schemaID.
// payload is not modified.
//
// Example:
//
//	framed := schema_registry.EncodeSchemaID(42, body)
//	// framed[:5] is 0x00 0x00 0x00 0x00 0x2a
func EncodeSchemaID(schemaID int, payload []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	out[0] = magicByte
	binary.BigEndian.PutUint32(out[1:HeaderSize], uint32(schemaID)) //nolint:gosec
	return append(out, payload...)
}

// DecodeSchemaID splits data into its schema id and body. The body aliases data.
// A short payload or a wrong magic byte wraps ErrInvalidWireFormat.
func DecodeSchemaID(data []byte) (int, []byte, error) {
	if len(data) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWireFormat, HeaderSize, len(data))
	}
	if data[0] != magicByte {
		return 0, nil, fmt.Errorf("%w: unexpected magic byte 0x%x", ErrInvalidWireFormat, data[0])
	}
	return int(binary.BigEndian.Uint32(data[1:HeaderSize])), data[HeaderSize:], nil
}
