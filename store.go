package recstore

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/recstore/batch"
	c "github.com/unkn0wn-root/recstore/codec"
	"github.com/unkn0wn-root/recstore/retry"
	"github.com/unkn0wn-root/recstore/transport"
)

type store[V any] struct {
	tr             transport.Transport
	codec          c.Codec[V]
	log            Logger
	hooks          Hooks
	cfg            Config
	policy         retry.Policy
	closeTransport bool
}

var _ Store[struct{}] = (*store[struct{}])(nil)

func newStore[V any](opts Options[V]) (*store[V], error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("recstore: transport is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("recstore: codec is required")
	}
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &store[V]{
		tr:             opts.Transport,
		codec:          opts.Codec,
		log:            coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:          coalesce[Hooks](opts.Hooks, NopHooks{}),
		cfg:            cfg,
		policy:         cfg.Policy(),
		closeTransport: opts.CloseTransport,
	}, nil
}

func (s *store[V]) Config() Config { return s.cfg }

// WithConfig never hands over transport ownership: only the original store
// closes a transport it owns.
func (s *store[V]) WithConfig(cfg Config) (Store[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cp := *s
	cp.cfg = cfg
	cp.policy = cfg.Policy()
	cp.closeTransport = false
	return &cp, nil
}

func (s *store[V]) Close(ctx context.Context) error {
	if s.closeTransport {
		return s.tr.Close(ctx)
	}
	return nil
}

func (s *store[V]) ttl(d time.Duration) time.Duration {
	return coalesce(d, s.cfg.TTL)
}

func (s *store[V]) Get(ctx context.Context, key, field string) (V, uint64, error) {
	var zero V
	rec, err := s.tr.Get(ctx, key, []string{field})
	if err != nil {
		return zero, 0, classify("get", key, err)
	}
	v, _, err := s.decodeField(rec, field)
	if err != nil {
		return zero, 0, err
	}
	return v, rec.Generation, nil
}

func (s *store[V]) Put(ctx context.Context, key, field string, value V, ttl time.Duration) (uint64, error) {
	payload, err := s.encode("put", key, value)
	if err != nil {
		return 0, err
	}
	gen, err := s.tr.Put(ctx, key, field, payload, s.ttl(ttl))
	if err != nil {
		return 0, classify("put", key, err)
	}
	return gen, nil
}

// PutIfGeneration is a single conditional write; a conflict is returned as
// ErrVersionConflict and never retried.
func (s *store[V]) PutIfGeneration(ctx context.Context, key, field string, value V, gen uint64, ttl time.Duration) (uint64, error) {
	payload, err := s.encode("put_if_generation", key, value)
	if err != nil {
		return 0, err
	}
	newGen, err := s.tr.ConditionalPut(ctx, key, field, payload, gen, s.ttl(ttl))
	if err != nil {
		return 0, classify("put_if_generation", key, err)
	}
	return newGen, nil
}

func (s *store[V]) Delete(ctx context.Context, key string) error {
	return classify("delete", key, s.tr.Delete(ctx, key))
}

func (s *store[V]) Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	gen, err := s.tr.Touch(ctx, key, s.ttl(ttl))
	if err != nil {
		return 0, classify("touch", key, err)
	}
	return gen, nil
}

func (s *store[V]) BatchRead(ctx context.Context, keys []string, field string) ([]Result[V], error) {
	items, err := batch.Fetch(ctx, keys, s.fetchChunk(field), s.cfg.ChunkSize, s.cfg.MaxConcurrentBatches)
	if err != nil {
		return nil, classify("batch_read", "", err)
	}
	out := make([]Result[V], len(items))
	for i, it := range items {
		rec := it.Value
		out[i] = Result[V]{Key: it.Key, Generation: rec.Generation, Found: rec.Exists()}
		if !rec.Exists() {
			continue
		}
		v, _, err := s.decodeField(rec, field)
		if err != nil {
			return nil, err
		}
		out[i].Value = v
	}
	return out, nil
}

// fetchChunk adapts Transport.BatchGet to the batch reader.
func (s *store[V]) fetchChunk(field string) batch.FetchFunc[transport.Record] {
	fields := []string{field}
	return func(ctx context.Context, chunk []string) ([]transport.Record, error) {
		recs, err := s.tr.BatchGet(ctx, chunk, fields)
		if err != nil {
			s.hooks.ChunkFailed(len(chunk), err)
			s.log.Warn("batch chunk failed", Fields{"size": len(chunk), "first": chunk[0], "err": err})
			return nil, err
		}
		return recs, nil
	}
}

// decodeField returns the zero value with present=false when the field is
// absent from rec.
func (s *store[V]) decodeField(rec transport.Record, field string) (v V, present bool, err error) {
	raw, ok := rec.Fields[field]
	if !ok {
		return v, false, nil
	}
	v, err = s.codec.Decode(raw)
	if err != nil {
		s.hooks.DecodeFailed(rec.Key, field, err)
		s.log.Debug("field decode failed", Fields{"key": rec.Key, "field": field, "err": err})
		var zero V
		return zero, false, &OpError{Op: "decode", Key: rec.Key, Kind: ErrTypeMismatch, Err: err}
	}
	return v, true, nil
}

func (s *store[V]) encode(op, key string, v V) ([]byte, error) {
	b, err := s.codec.Encode(v)
	if err != nil {
		return nil, &OpError{Op: op, Key: key, Kind: ErrOperation, Err: fmt.Errorf("encode: %w", err)}
	}
	return b, nil
}
