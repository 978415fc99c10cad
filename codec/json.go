package codec

import "encoding/json"

// JSON returns the JSON codec. It is the default: self-describing,
// cross-language, and easy to inspect on the bus.
func JSON() Codec {
	return jsonCodec{}
}

type jsonCodec struct{}

// Name implements the Codec interface.
func (jsonCodec) Name() string {
	return "json"
}

// Marshal implements the Codec interface.
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements the Codec interface.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
