package codec

import "encoding/json"

// JSON is the default codec. Snapshots written with it are byte-compatible
// with the browser client's localStorage payloads.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
