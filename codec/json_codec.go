package codec

import (
	"encoding/json"
	"fmt"
)

// JSONCodec serializes RpcRequest/RpcResponse with encoding/json. It exists
// alongside BinaryCodec as the human-readable fallback: useful for manual
// debugging with a TCP dump, and as the interop format a non-Go caller that
// can't replicate BinaryCodec's reflective field layout would speak.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode %T: %w", v, err)
	}
	return data, nil
}

// Decode rejects an empty payload outright rather than handing
// json.Unmarshal's "unexpected end of JSON input" up the stack — through
// DecodeEnvelope an empty body reaches here when a frame's payload is
// nothing but the JSON envelope byte, which is a malformed-frame
// condition, not valid JSON.
func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: json decode %T: empty payload", v)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: json decode %T: %w", v, err)
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
