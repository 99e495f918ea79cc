package recstore

import (
	"time"

	"github.com/unkn0wn-root/recstore/retry"
)

const (
	defaultChunkSize     = 100
	defaultMaxConcurrent = 4
	defaultMaxAttempts   = 5
	defaultBaseDelay     = 10 * time.Millisecond
	defaultBackoffMode   = retry.Exponential
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
