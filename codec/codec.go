// Package codec converts typed field values to and from the opaque bytes a
// record field holds.
package codec

import "errors"

// ErrDecode is wrapped by codecs that detect a malformed payload themselves.
var ErrDecode = errors.New("codec: malformed payload")

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Zeroer is optionally implemented by codecs whose type has a "default value"
// that differs from Go's zero value (e.g. an empty proto message behind a
// non-nil pointer). Read-modify-write treats such values as absent.
type Zeroer[V any] interface {
	IsZero(V) bool
}
