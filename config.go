package recstore

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/recstore/retry"
)

// Config tunes batch reads and read-modify-write retries. It is a value:
// the With* methods return modified copies.
type Config struct {
	ChunkSize            int           `yaml:"chunk_size"`             // keys per transport batch call
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches"` // chunks per wave
	MaxAttempts          int           `yaml:"max_attempts"`           // retries after the first RMW cycle
	BaseDelay            time.Duration `yaml:"base_delay"`
	BackoffMode          retry.Mode    `yaml:"backoff_mode"`
	MaxDelay             time.Duration `yaml:"max_delay"` // 0 => uncapped
	TTL                  time.Duration `yaml:"ttl"`       // default record TTL; 0 => no expiry
}

// DefaultConfig: chunk 100, 4 concurrent chunks, 5 retries starting at 10ms
// with exponential backoff, no record expiry.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            defaultChunkSize,
		MaxConcurrentBatches: defaultMaxConcurrent,
		MaxAttempts:          defaultMaxAttempts,
		BaseDelay:            defaultBaseDelay,
		BackoffMode:          defaultBackoffMode,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ChunkSize < 1:
		return fmt.Errorf("%w: chunk size %d < 1", ErrInvalidConfig, c.ChunkSize)
	case c.MaxConcurrentBatches < 1:
		return fmt.Errorf("%w: max concurrent batches %d < 1", ErrInvalidConfig, c.MaxConcurrentBatches)
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: max attempts %d < 0", ErrInvalidConfig, c.MaxAttempts)
	case c.BaseDelay < 0 || c.MaxDelay < 0:
		return fmt.Errorf("%w: negative delay (base=%v max=%v)", ErrInvalidConfig, c.BaseDelay, c.MaxDelay)
	case c.TTL < 0:
		return fmt.Errorf("%w: ttl %v < 0", ErrInvalidConfig, c.TTL)
	case c.BackoffMode != retry.Fixed && c.BackoffMode != retry.Exponential:
		return fmt.Errorf("%w: backoff mode %v", ErrInvalidConfig, c.BackoffMode)
	}
	return nil
}

// Policy returns the retry policy described by c. Call Validate first; out of
// range values are clamped.
func (c Config) Policy() retry.Policy {
	return retry.Policy{}.
		WithMode(c.BackoffMode).
		WithMaxAttempts(c.MaxAttempts).
		WithBaseDelay(c.BaseDelay).
		WithMaxDelay(c.MaxDelay)
}

func (c Config) WithChunkSize(n int) Config {
	c.ChunkSize = n
	return c
}

func (c Config) WithMaxConcurrentBatches(n int) Config {
	c.MaxConcurrentBatches = n
	return c
}

func (c Config) WithMaxAttempts(n int) Config {
	c.MaxAttempts = n
	return c
}

func (c Config) WithBaseDelay(d time.Duration) Config {
	c.BaseDelay = d
	return c
}

func (c Config) WithBackoffMode(m retry.Mode) Config {
	c.BackoffMode = m
	return c
}

func (c Config) WithMaxDelay(d time.Duration) Config {
	c.MaxDelay = d
	return c
}

func (c Config) WithTTL(d time.Duration) Config {
	c.TTL = d
	return c
}

// WithPolicy copies attempts, delays and mode from p.
func (c Config) WithPolicy(p retry.Policy) Config {
	c.MaxAttempts = p.MaxAttempts()
	c.BaseDelay = p.BaseDelay()
	c.MaxDelay = p.MaxDelay()
	c.BackoffMode = p.Mode()
	return c
}
