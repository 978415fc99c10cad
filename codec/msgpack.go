package codec

import (
	mp "github.com/hashicorp/go-msgpack/v2/codec"
)

// Msgpack returns the msgpack codec. Smaller and faster than JSON for
// binary-heavy payloads; both ends must have it registered.
func Msgpack() Codec {
	return msgpackCodec{}
}

type msgpackCodec struct{}

// The handle is stateless configuration and safe to share across
// encoders/decoders. RawToString is promoted from the embedded
// BasicHandle, so it cannot be set in a composite literal.
var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *mp.MsgpackHandle {
	h := &mp.MsgpackHandle{}
	h.RawToString = true
	return h
}

// Name implements the Codec interface.
func (msgpackCodec) Name() string {
	return "msgpack"
}

// Marshal implements the Codec interface.
func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf []byte
	if err := mp.NewEncoderBytes(&buf, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal implements the Codec interface.
func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return mp.NewDecoderBytes(data, msgpackHandle).Decode(v)
}
