package recstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/recstore/codec"
	"github.com/unkn0wn-root/recstore/transport"
)

var (
	ErrConnection               = errors.New("recstore: connection failure")
	ErrNotFound                 = errors.New("recstore: record not found")
	ErrTypeMismatch             = errors.New("recstore: type mismatch")
	ErrVersionConflict          = errors.New("recstore: version conflict")
	ErrVersionConflictExhausted = errors.New("recstore: version conflict retries exhausted")
	ErrOperation                = errors.New("recstore: operation failed")
	ErrInvalidConfig            = errors.New("recstore: invalid config")
)

// OpError is returned by store operations. errors.Is(err, Kind) holds, and the
// underlying cause stays reachable through Unwrap.
type OpError struct {
	Op   string
	Key  string
	Kind error // one of the Err* sentinels above
	Err  error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("recstore %s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("recstore %s %q: %v: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *OpError) Is(target error) bool { return target == e.Kind }
func (e *OpError) Unwrap() error        { return e.Err }

// ConflictExhaustedError reports that every allowed read-modify-write cycle
// lost its generation race. Last is the final conflict.
type ConflictExhaustedError struct {
	Key      string
	Attempts int
	Last     error
}

func (e *ConflictExhaustedError) Error() string {
	return fmt.Sprintf("recstore rmw %q: gave up after %d attempts: %v", e.Key, e.Attempts, e.Last)
}

func (e *ConflictExhaustedError) Is(target error) bool {
	return target == ErrVersionConflictExhausted
}

func (e *ConflictExhaustedError) Unwrap() error { return e.Last }

// classify maps transport and codec failures onto the store taxonomy.
// Context errors and already classified errors pass through unchanged.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	kind := ErrOperation
	switch {
	case errors.Is(err, transport.ErrGenerationMismatch):
		kind = ErrVersionConflict
	case errors.Is(err, transport.ErrNotFound):
		kind = ErrNotFound
	case errors.Is(err, transport.ErrTypeMismatch), errors.Is(err, codec.ErrDecode):
		kind = ErrTypeMismatch
	case errors.Is(err, transport.ErrUnavailable):
		kind = ErrConnection
	}
	return &OpError{Op: op, Key: key, Kind: kind, Err: err}
}
