package recstore

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/recstore/codec"
	"github.com/unkn0wn-root/recstore/retry"
	"github.com/unkn0wn-root/recstore/transport"
)

// Store is the typed record API. V is the value type of the fields it reads
// and writes; serialization is handled by a pluggable Codec[V].
//
// A ttl argument of 0 means Config.TTL; a negative ttl means no expiry.
type Store[V any] interface {
	// Single
	Get(ctx context.Context, key, field string) (v V, gen uint64, err error)
	Put(ctx context.Context, key, field string, value V, ttl time.Duration) (uint64, error)
	PutIfGeneration(ctx context.Context, key, field string, value V, gen uint64, ttl time.Duration) (uint64, error)
	Delete(ctx context.Context, key string) error
	Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error)

	// Batch (positional: out[i] belongs to keys[i], duplicates included)
	BatchRead(ctx context.Context, keys []string, field string) ([]Result[V], error)

	// Optimistic read-modify-write with generation CAS
	ReadModifyWrite(ctx context.Context, req RMWRequest[V]) (uint64, error)

	Config() Config
	// WithConfig returns a store sharing the transport with cfg applied.
	// The receiver is unchanged.
	WithConfig(cfg Config) (Store[V], error)
	Close(context.Context) error
}

// Result is one BatchRead slot.
type Result[V any] struct {
	Key        string
	Value      V // zero when !Found or the field is absent
	Generation uint64
	Found      bool
}

// RMWRequest describes one read-modify-write.
type RMWRequest[V any] struct {
	Key   string
	Field string

	// Add produces the value when the record is missing or the field decodes
	// to the zero value of V.
	Add func() (V, error)
	// Update derives the next value from the stored one.
	Update func(prev V) (V, error)

	TTL   time.Duration // 0 => Config.TTL
	Retry *retry.Policy // nil => policy from Config
}

// Options configure a Store. Transport and Codec are required.
type Options[V any] struct {
	Transport transport.Transport
	Codec     c.Codec[V]

	Logger         Logger  // if nil, NopLogger is used
	Hooks          Hooks   // if nil, NopHooks is used
	Config         *Config // nil => DefaultConfig()
	CloseTransport bool    // set true only if the store exclusively owns the transport
}

func New[V any](opts Options[V]) (Store[V], error) {
	return newStore[V](opts)
}
