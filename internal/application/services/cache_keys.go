package services

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// DeriveKey builds a stable cache key from a namespace and an ordered list
// of parameters: namespace + ":" + a 16-hex-digit hash of their canonical
// JSON form. Identical parameters always map to the same key.
func DeriveKey(namespace string, params ...any) string {
	return namespace + ":" + hashParams(params)
}

// DeriveNamedKey is DeriveKey for parameters identified by name. Names are
// canonicalized by sorting, so map iteration order never changes the key.
func DeriveNamedKey(namespace string, params map[string]any) string {
	// encoding/json writes map keys in sorted order.
	return namespace + ":" + hashParams(params)
}

func hashParams(v any) string {
	canonical, err := json.Marshal(v)
	if err != nil {
		// Values JSON cannot represent still get a deterministic key.
		canonical = []byte(fmt.Sprintf("%#v", v))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical))
}
