package recstore

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unkn0wn-root/recstore/batch"
	c "github.com/unkn0wn-root/recstore/codec"
	"github.com/unkn0wn-root/recstore/transport"
)

var errMissingCallback = errors.New("rmw request needs both Add and Update")

type cycleOutcome uint8

const (
	cycleDone cycleOutcome = iota
	cycleConflict
	cycleFatal
)

// cycleResult is the tagged outcome of one fetch/resolve/write pass.
type cycleResult struct {
	outcome cycleOutcome
	gen     uint64 // cycleDone
	err     error  // cycleConflict, cycleFatal
}

// ReadModifyWrite runs fetch -> resolve -> conditional write until the write
// lands, the retry policy gives up, or a non-conflict error occurs. Only
// generation conflicts consume the policy's backoff schedule.
func (s *store[V]) ReadModifyWrite(ctx context.Context, req RMWRequest[V]) (uint64, error) {
	if req.Add == nil || req.Update == nil {
		return 0, &OpError{Op: "rmw", Key: req.Key, Kind: ErrOperation, Err: errMissingCallback}
	}
	policy := s.policy
	if req.Retry != nil {
		if err := req.Retry.Validate(); err != nil {
			return 0, &OpError{Op: "rmw", Key: req.Key, Kind: ErrOperation, Err: err}
		}
		policy = *req.Retry
	}
	ttl := s.ttl(req.TTL)

	var (
		attempts int
		gen      uint64
		fatal    error
		last     error
	)
	op := func() error {
		res := s.cycle(ctx, req, ttl)
		attempts++
		switch res.outcome {
		case cycleDone:
			gen = res.gen
			return nil
		case cycleFatal:
			fatal = res.err
			return backoff.Permanent(res.err)
		}
		last = res.err
		return res.err
	}
	notify := func(_ error, delay time.Duration) {
		s.hooks.ConflictRetry(req.Key, attempts-1, delay)
		s.log.Debug("rmw version conflict, retrying", Fields{"key": req.Key, "attempt": attempts - 1, "delay": delay})
	}

	err := backoff.RetryNotify(op, policy.BackOff(ctx), notify)
	switch {
	case err == nil:
		return gen, nil
	case fatal != nil:
		return 0, fatal
	case ctx.Err() != nil:
		return 0, ctx.Err()
	}
	s.hooks.ConflictExhausted(req.Key, attempts)
	s.log.Warn("rmw retries exhausted", Fields{"key": req.Key, "attempts": attempts})
	return 0, &ConflictExhaustedError{Key: req.Key, Attempts: attempts, Last: last}
}

func (s *store[V]) cycle(ctx context.Context, req RMWRequest[V], ttl time.Duration) cycleResult {
	fatal := func(err error) cycleResult { return cycleResult{outcome: cycleFatal, err: err} }

	items, err := batch.Fetch(ctx, []string{req.Key}, s.fetchChunk(req.Field), 1, 1)
	if err != nil {
		return fatal(classify("rmw", req.Key, err))
	}
	rec := items[0].Value

	next, err := s.resolve(rec, req)
	if err != nil {
		return fatal(err)
	}
	payload, err := s.encode("rmw", req.Key, next)
	if err != nil {
		return fatal(err)
	}

	gen, err := s.tr.ConditionalPut(ctx, req.Key, req.Field, payload, rec.Generation, ttl)
	switch {
	case err == nil:
		return cycleResult{outcome: cycleDone, gen: gen}
	case errors.Is(err, transport.ErrGenerationMismatch):
		return cycleResult{outcome: cycleConflict, err: classify("rmw", req.Key, err)}
	default:
		return fatal(classify("rmw", req.Key, err))
	}
}

// resolve picks Add for a missing record or a zero-valued field, Update otherwise.
func (s *store[V]) resolve(rec transport.Record, req RMWRequest[V]) (V, error) {
	var (
		next V
		err  error
	)
	prev, present, derr := s.decodeField(rec, req.Field)
	switch {
	case derr != nil:
		return next, derr
	case !rec.Exists() || !present || s.isZero(prev):
		next, err = req.Add()
	default:
		next, err = req.Update(prev)
	}
	if err != nil {
		return next, &OpError{Op: "rmw", Key: req.Key, Kind: ErrOperation, Err: err}
	}
	return next, nil
}

func (s *store[V]) isZero(v V) bool {
	if z, ok := s.codec.(c.Zeroer[V]); ok {
		return z.IsZero(v)
	}
	return reflect.ValueOf(&v).Elem().IsZero()
}
