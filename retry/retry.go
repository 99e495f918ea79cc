// Package retry holds the backoff policy used between read-modify-write
// attempts that lost a generation race.
//
// A Policy is an immutable value: the With* methods return modified copies, so
// a policy shared between goroutines can be specialised per call without
// affecting the other holders. BackOff turns it into a fresh
// github.com/cenkalti/backoff/v4 schedule for each operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Mode selects how the delay grows between attempts.
type Mode uint8

const (
	// Fixed waits baseDelay before every retry.
	Fixed Mode = iota
	// Exponential waits baseDelay * 2^attempt.
	Exponential
)

// Ceiling bounds every delay, including uncapped exponential ones.
const Ceiling = time.Duration(1 << 62)

var ErrInvalidPolicy = errors.New("retry: invalid policy")

func (m Mode) String() string {
	switch m {
	case Fixed:
		return "fixed"
	case Exponential:
		return "exponential"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != Fixed && m != Exponential {
		return nil, fmt.Errorf("%w: unknown backoff mode %d", ErrInvalidPolicy, uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "fixed":
		*m = Fixed
	case "exponential", "exp":
		*m = Exponential
	default:
		return fmt.Errorf("%w: unknown backoff mode %q", ErrInvalidPolicy, string(b))
	}
	return nil
}

// Policy decides whether and how long to wait before re-running a cycle.
// The zero value never retries.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration // 0 => uncapped
	mode        Mode
}

// New returns a validated policy. maxAttempts counts retries after the first
// attempt, so maxAttempts=0 means "try once".
func New(maxAttempts int, baseDelay time.Duration, mode Mode) (Policy, error) {
	p := Policy{maxAttempts: maxAttempts, baseDelay: baseDelay, mode: mode}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// NewFixed returns a Fixed policy; negative inputs are clamped to zero.
func NewFixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{mode: Fixed}.WithMaxAttempts(maxAttempts).WithBaseDelay(delay)
}

// NewExponential returns an Exponential policy; negative inputs are clamped to zero.
func NewExponential(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{mode: Exponential}.WithMaxAttempts(maxAttempts).WithBaseDelay(baseDelay)
}

func (p Policy) Validate() error {
	switch {
	case p.maxAttempts < 0:
		return fmt.Errorf("%w: max attempts %d < 0", ErrInvalidPolicy, p.maxAttempts)
	case p.baseDelay < 0:
		return fmt.Errorf("%w: base delay %v < 0", ErrInvalidPolicy, p.baseDelay)
	case p.maxDelay < 0:
		return fmt.Errorf("%w: max delay %v < 0", ErrInvalidPolicy, p.maxDelay)
	case p.mode != Fixed && p.mode != Exponential:
		return fmt.Errorf("%w: unknown backoff mode %d", ErrInvalidPolicy, uint8(p.mode))
	}
	return nil
}

func (p Policy) MaxAttempts() int         { return p.maxAttempts }
func (p Policy) BaseDelay() time.Duration { return p.baseDelay }
func (p Policy) MaxDelay() time.Duration  { return p.maxDelay }
func (p Policy) Mode() Mode               { return p.mode }

func (p Policy) WithMaxAttempts(n int) Policy {
	p.maxAttempts = max(n, 0)
	return p
}

func (p Policy) WithBaseDelay(d time.Duration) Policy {
	p.baseDelay = max(d, 0)
	return p
}

// WithMaxDelay caps every computed delay; 0 removes the cap.
func (p Policy) WithMaxDelay(d time.Duration) Policy {
	p.maxDelay = max(d, 0)
	return p
}

func (p Policy) WithMode(m Mode) Policy {
	p.mode = m
	return p
}

// ShouldRetry reports whether the retry with the given zero-based index may run.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.maxAttempts
}

// DelayFor returns the wait before the retry with the given zero-based index.
// Uncapped exponential delays saturate at Ceiling.
func (p Policy) DelayFor(attempt int) time.Duration {
	b := p.schedule()
	d := b.NextBackOff()
	if p.mode == Fixed {
		return d
	}
	for i := 0; i < attempt && d < p.limit(); i++ {
		d = b.NextBackOff()
	}
	return d
}

// BackOff returns a fresh schedule for one operation. It yields DelayFor(0),
// DelayFor(1), ... and then backoff.Stop after MaxAttempts retries or once ctx
// is done.
func (p Policy) BackOff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(p.schedule(), uint64(p.maxAttempts)), ctx)
}

func (p Policy) limit() time.Duration {
	if p.maxDelay > 0 && p.maxDelay < Ceiling {
		return p.maxDelay
	}
	return Ceiling
}

func (p Policy) schedule() backoff.BackOff {
	first := min(p.baseDelay, p.limit())
	if p.mode == Fixed {
		return backoff.NewConstantBackOff(first)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = first
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.limit()
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) String() string {
	return fmt.Sprintf("%s(max=%d base=%v cap=%v)", p.mode, p.maxAttempts, p.baseDelay, p.maxDelay)
}
