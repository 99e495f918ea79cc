package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto messages. Construct with NewProtobuf so Decode
// can allocate the concrete message type.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *mypb.User { return &mypb.User{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: protobuf: %v", ErrDecode, err)
	}
	return m, nil
}

// IsZero reports whether m carries no set fields.
func (c Protobuf[T]) IsZero(m T) bool {
	return !m.ProtoReflect().IsValid() || proto.Size(m) == 0
}
