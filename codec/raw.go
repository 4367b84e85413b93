package codec

import (
	"fmt"
	"strconv"
)

// Int stores an integer as its decimal text, the same layout the browser
// client uses for the anonymous points counter ("anon_points").
type Int struct{}

func (Int) Encode(n int) ([]byte, error) { return strconv.AppendInt(nil, int64(n), 10), nil }
func (Int) Decode(b []byte) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("int codec: %w", err)
	}
	return n, nil
}
