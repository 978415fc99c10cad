// Package codec provides the value encodings used on the wire. Envelopes
// stay JSON; the values they carry are marshaled by a Codec chosen per
// node, named in every request so both ends agree.
package codec

import "sync"

// Codec marshals and unmarshals a single value. Implementations must be
// safe for concurrent use and deterministic enough for cross-node exchange.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
)

func init() {
	Register(JSON())
	Register(Msgpack())
}

// Register adds a codec to the package registry, replacing any codec
// previously registered under the same name.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// Get returns the codec registered under name, or nil.
func Get(name string) Codec {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}

// Default returns the codec used when none is configured.
func Default() Codec {
	return JSON()
}
