// Package codec provides the serialization layer for mini-RPC.
//
// It defines a pluggable Codec interface with two implementations:
//   - JSONCodec:   human-readable, easy to debug.
//   - BinaryCodec: a compact reflective binary format whose field schema is
//     computed once per record type and cached (spec.md §4.1).
package codec

// CodecType identifies the serialization format. A byte-sized tag rather
// than a string so it fits in the single envelope byte EncodeEnvelope
// prefixes to each frame payload.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec is the interface for serialization/deserialization. Implementing
// this interface allows adding new formats without changing any other
// layer — the Strategy pattern, same as the teacher's Codec interface.
type Codec interface {
	Encode(v any) ([]byte, error)    // Serialize a record to bytes.
	Decode(data []byte, v any) error // Deserialize bytes into v (a pointer).
	Type() CodecType                 // Return the codec type identifier.
}

// GetCodec is a factory function that returns the appropriate codec by type.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}
	return &BinaryCodec{}
}

// EncodeEnvelope serializes v with the given codec and prefixes the result
// with a single codec-type byte, so a frame payload is self-describing:
// the receiver reads CodecType from the first byte without any side
// channel, per the framing note in SPEC_FULL.md §4.1.
func EncodeEnvelope(codecType CodecType, v any) ([]byte, error) {
	body, err := GetCodec(codecType).Encode(v)
	if err != nil {
		return nil, err
	}
	envelope := make([]byte, 1+len(body))
	envelope[0] = byte(codecType)
	copy(envelope[1:], body)
	return envelope, nil
}

// DecodeEnvelope reads the codec-type byte off the front of payload and
// decodes the remainder into v using that codec.
func DecodeEnvelope(payload []byte, v any) error {
	if len(payload) < 1 {
		return GetCodec(CodecTypeBinary).Decode(payload, v)
	}
	return GetCodec(CodecType(payload[0])).Decode(payload[1:], v)
}
