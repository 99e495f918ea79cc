package recstore

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths.
type Hooks interface {
	// A read-modify-write cycle lost a generation race and will be re-run
	// after delay. attempt is the zero-based retry index.
	ConflictRetry(key string, attempt int, delay time.Duration)

	// The retry policy gave up; attempts counts every cycle that ran.
	ConflictExhausted(key string, attempts int)

	// A batch chunk failed; the whole batch read is aborted.
	ChunkFailed(chunkSize int, err error)

	// A stored field could not be decoded into V.
	DecodeFailed(key, field string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ConflictRetry(string, int, time.Duration) {}
func (NopHooks) ConflictExhausted(string, int)            {}
func (NopHooks) ChunkFailed(int, error)                   {}
func (NopHooks) DecodeFailed(string, string, error)       {}
