package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes field values with vmihailenco/msgpack/v5. The zero value
// is ready to use and honours `msgpack:"..."` struct tags.
//
// Set JSONTags to reuse existing `json:"..."` tags, so a field written by a
// JSON-speaking client keeps the same key names after switching codecs.
type Msgpack[V any] struct {
	JSONTags bool
}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.JSONTags {
		return msgpack.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	if c.JSONTags {
		dec.SetCustomStructTag("json")
	}
	if err := dec.Decode(&v); err != nil {
		var zero V
		return zero, fmt.Errorf("%w: msgpack: %v", ErrDecode, err)
	}
	return v, nil
}
