package nipc

import (
	"fmt"

	"github.com/nivrem/nipc/codec"
)

// Value is a single codec-encoded value received from a remote node.
// It is decoded lazily, so handlers choose the Go type to decode into.
type Value struct {
	codec codec.Codec
	data  []byte
}

// Decode unmarshals the value into the given target, which must be a pointer.
// An empty value leaves the target untouched.
func (v Value) Decode(into interface{}) error {
	if len(v.data) == 0 {
		return nil
	}
	if r := v.codec.Unmarshal(v.data, into); r != nil {
		return SerializationError{Op: "decode value", Err: r}
	}
	return nil
}

// Raw returns the encoded bytes of the value.
func (v Value) Raw() []byte {
	return v.data
}

// Args holds the positional arguments of an incoming call.
type Args []Value

// Decode unmarshals leading arguments into the given targets, which must be
// pointers. It fails if the call carried fewer arguments than targets given.
func (a Args) Decode(into ...interface{}) error {
	if len(into) > len(a) {
		return InvalidRequestError{Reason: fmt.Sprintf("call has %d arguments, handler expects %d", len(a), len(into))}
	}
	for i, target := range into {
		if r := a[i].Decode(target); r != nil {
			return r
		}
	}
	return nil
}
