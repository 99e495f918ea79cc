// Package transport defines the record-store boundary used by recstore.
//
// A Transport performs single-key reads, writes and deletes against a remote
// record store, plus a positional batched read. Every record carries a
// generation: 0 means "does not exist", and each successful write increments it
// by exactly one. Writes can be made conditional on an expected generation.
//
// Implementations must be safe for concurrent use and must perform exactly one
// attempt per call. They must not resend a write after a timeout: the caller
// decides whether the whole read-modify-write cycle is retried.
package transport

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that the record does not exist where existence was required.
	ErrNotFound = errors.New("transport: record not found")
	// ErrGenerationMismatch reports a failed expected-generation precondition.
	ErrGenerationMismatch = errors.New("transport: generation mismatch")
	// ErrTypeMismatch reports that the stored key holds an incompatible shape.
	ErrTypeMismatch = errors.New("transport: type mismatch")
	// ErrUnavailable reports that the store could not be reached.
	ErrUnavailable = errors.New("transport: store unavailable")
	// ErrInvalidField reports an empty or reserved field name.
	ErrInvalidField = errors.New("transport: invalid field name")
)

// Record is a snapshot of a stored record.
// Generation 0 with nil Fields means the record does not exist.
type Record struct {
	Key        string
	Generation uint64
	Fields     map[string][]byte
}

// Exists reports whether the record was present when read.
func (r Record) Exists() bool { return r.Generation > 0 }

// Transport is the record store boundary.
// A ttl <= 0 means the record does not expire.
type Transport interface {
	// Get returns the record restricted to fields (all fields when empty).
	// Returns ErrNotFound when the record does not exist.
	Get(ctx context.Context, key string, fields []string) (Record, error)

	// BatchGet reads keys positionally: out[i] belongs to keys[i], duplicates
	// included. Missing records come back with Generation 0 and nil Fields.
	BatchGet(ctx context.Context, keys []string, fields []string) ([]Record, error)

	// ConditionalPut writes one field iff the current generation equals
	// expectedGen (0 = record must not exist) and returns the new generation.
	// Returns ErrGenerationMismatch when the precondition fails.
	ConditionalPut(ctx context.Context, key, field string, value []byte, expectedGen uint64, ttl time.Duration) (uint64, error)

	// Put writes one field unconditionally and returns the new generation.
	Put(ctx context.Context, key, field string, value []byte, ttl time.Duration) (uint64, error)

	// Touch resets the record TTL, bumping its generation.
	// Returns ErrNotFound when the record does not exist.
	Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error)

	// Delete removes the record. Returns ErrNotFound when it does not exist.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Project returns a copy of fields restricted to names; all fields when names
// is empty. Values are cloned, so callers never share buffers with the source.
func Project(fields map[string][]byte, names []string) map[string][]byte {
	if len(names) == 0 {
		out := make(map[string][]byte, len(fields))
		for k, v := range fields {
			out[k] = bytes.Clone(v)
		}
		return out
	}
	out := make(map[string][]byte, len(names))
	for _, n := range names {
		if v, ok := fields[n]; ok {
			out[n] = bytes.Clone(v)
		}
	}
	return out
}
