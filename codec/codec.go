// Package codec turns cached values into bytes and back.
//
// The TTL store frames whatever a codec produces; a codec never sees the
// expiry envelope. Decode errors are treated by the store as a corrupt entry
// and the key is purged.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
