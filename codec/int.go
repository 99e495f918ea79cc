package codec

import (
	"encoding/binary"
	"fmt"
)

// Int64 stores integers as 8 big-endian bytes, the usual shape of a counter
// field. An empty payload decodes to 0.
type Int64 struct{}

var _ Codec[int64] = Int64{}

func (Int64) Encode(v int64) ([]byte, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:], nil
}

func (Int64) Decode(b []byte) (int64, error) {
	switch len(b) {
	case 0:
		return 0, nil
	case 8:
		return int64(binary.BigEndian.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("%w: int64 needs 8 bytes, got %d", ErrDecode, len(b))
	}
}
