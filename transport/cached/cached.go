// Package cached wraps a transport.Transport with a read-through byte cache
// (any provider.Provider: Ristretto, BigCache, Redis).
//
// Entries live at "rc:<ns>:<key>" and hold the whole record (generation and
// every field) in the internal/wire record frame. Reads are served from the
// cache when possible; every write path deletes the entry after reaching the
// inner transport.
//
// A reader snapshots the key's invalidation epoch before going to the inner
// transport and fills the cache only if no write dropped the key meanwhile, so
// a slow reader cannot put back a record older than a completed write.
// Conditional writes are always decided by the inner transport, and a
// generation mismatch deletes the entry, so a read-modify-write retry observes
// the current record.
package cached

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/recstore/internal/util"
	"github.com/unkn0wn-root/recstore/internal/wire"
	"github.com/unkn0wn-root/recstore/provider"
	"github.com/unkn0wn-root/recstore/transport"
)

const (
	keyPrefix   = "rc"
	defaultTTL  = time.Minute
	epochShards = 256
)

var (
	ErrNilInner    = errors.New("cached transport: inner transport is required")
	ErrNilProvider = errors.New("cached transport: provider is required")
)

type CostFunc func(storageKey string, raw []byte) int64

// Hooks report cache maintenance events. Implementations MUST be cheap and
// non-blocking.
type Hooks interface {
	// An entry was deleted on read or after a lost conditional write.
	// reason ∈ {"corrupt", "gen_mismatch"}
	SelfHeal(storageKey, reason string)
	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)
	// Provider Get/Set/Del failed; the call fell through to the inner transport.
	ProviderError(op string, err error)
}

type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)     {}
func (NopHooks) ProviderSetRejected(string)  {}
func (NopHooks) ProviderError(string, error) {}

type Config struct {
	Inner     transport.Transport
	Provider  provider.Provider
	Namespace string

	TTL           time.Duration // cache entry TTL; 0 => 1m
	ComputeCost   CostFunc      // default 1
	Hooks         Hooks         // nil => NopHooks
	CloseInner    bool          // close Inner on Close
	CloseProvider bool          // close Provider on Close
}

type Transport struct {
	inner transport.Transport
	p     provider.Provider
	ns    string
	ttl   time.Duration
	cost  CostFunc
	hooks Hooks

	closeInner    bool
	closeProvider bool

	epochs [epochShards]epochShard
}

// epochShard serializes fills against drops for the keys hashed to it. A drop
// bumps n, and a fill proceeds only if n still matches the reader's snapshot.
type epochShard struct {
	mu sync.Mutex
	n  uint64
}

var _ transport.Transport = (*Transport)(nil)

func New(cfg Config) (*Transport, error) {
	if cfg.Inner == nil {
		return nil, ErrNilInner
	}
	if cfg.Provider == nil {
		return nil, ErrNilProvider
	}
	t := &Transport{
		inner:         cfg.Inner,
		p:             cfg.Provider,
		ns:            cfg.Namespace,
		ttl:           cfg.TTL,
		cost:          cfg.ComputeCost,
		hooks:         cfg.Hooks,
		closeInner:    cfg.CloseInner,
		closeProvider: cfg.CloseProvider,
	}
	if t.ttl <= 0 {
		t.ttl = defaultTTL
	}
	if t.cost == nil {
		t.cost = func(string, []byte) int64 { return 1 }
	}
	if t.hooks == nil {
		t.hooks = NopHooks{}
	}
	return t, nil
}

func (t *Transport) key(k string) string { return util.StorageKey(keyPrefix, t.ns, k) }

func (t *Transport) Get(ctx context.Context, key string, fields []string) (transport.Record, error) {
	if rec, ok := t.lookup(ctx, key); ok {
		return project(rec, fields), nil
	}
	epoch := t.epoch(key)
	rec, err := t.inner.Get(ctx, key, nil)
	if err != nil {
		return transport.Record{}, err
	}
	t.fill(ctx, rec, epoch)
	return project(rec, fields), nil
}

// BatchGet serves hits from the cache and reads the misses (deduplicated) from
// the inner transport in one call. Output stays positional.
func (t *Transport) BatchGet(ctx context.Context, keys []string, fields []string) ([]transport.Record, error) {
	out := make([]transport.Record, len(keys))
	hit := make([]bool, len(keys))
	var missing []string
	seen := make(map[string]struct{})
	for i, k := range keys {
		if rec, ok := t.lookup(ctx, k); ok {
			out[i], hit[i] = project(rec, fields), true
			continue
		}
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	epochs := make([]uint64, len(missing))
	for i, k := range missing {
		epochs[i] = t.epoch(k)
	}
	recs, err := t.inner.BatchGet(ctx, missing, nil)
	if err != nil {
		return nil, err
	}
	if len(recs) != len(missing) {
		return nil, fmt.Errorf("cached transport: inner BatchGet returned %d records for %d keys", len(recs), len(missing))
	}
	byKey := make(map[string]transport.Record, len(recs))
	for i, rec := range recs {
		rec.Key = missing[i]
		byKey[rec.Key] = rec
		if rec.Exists() {
			t.fill(ctx, rec, epochs[i])
		}
	}
	for i, k := range keys {
		if hit[i] {
			continue
		}
		rec := byKey[k]
		if !rec.Exists() {
			out[i] = transport.Record{Key: k}
			continue
		}
		out[i] = project(rec, fields)
	}
	return out, nil
}

func (t *Transport) ConditionalPut(ctx context.Context, key, field string, value []byte, expectedGen uint64, ttl time.Duration) (uint64, error) {
	gen, err := t.inner.ConditionalPut(ctx, key, field, value, expectedGen, ttl)
	if errors.Is(err, transport.ErrGenerationMismatch) {
		t.hooks.SelfHeal(t.key(key), "gen_mismatch")
	}
	t.drop(ctx, key)
	return gen, err
}

func (t *Transport) Put(ctx context.Context, key, field string, value []byte, ttl time.Duration) (uint64, error) {
	gen, err := t.inner.Put(ctx, key, field, value, ttl)
	t.drop(ctx, key)
	return gen, err
}

func (t *Transport) Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	gen, err := t.inner.Touch(ctx, key, ttl)
	t.drop(ctx, key)
	return gen, err
}

func (t *Transport) Delete(ctx context.Context, key string) error {
	err := t.inner.Delete(ctx, key)
	t.drop(ctx, key)
	return err
}

func (t *Transport) Close(ctx context.Context) error {
	var errs []error
	if t.closeProvider {
		errs = append(errs, t.p.Close(ctx))
	}
	if t.closeInner {
		errs = append(errs, t.inner.Close(ctx))
	}
	return errors.Join(errs...)
}

// lookup returns the cached record for key. Corrupt entries are deleted.
func (t *Transport) lookup(ctx context.Context, key string) (transport.Record, bool) {
	k := t.key(key)
	raw, ok, err := t.p.Get(ctx, k)
	if err != nil {
		t.hooks.ProviderError("get", err)
		return transport.Record{}, false
	}
	if !ok {
		return transport.Record{}, false
	}
	gen, fields, err := wire.DecodeRecord(raw)
	if err != nil || gen == 0 {
		t.hooks.SelfHeal(k, "corrupt")
		if err := t.p.Del(ctx, k); err != nil {
			t.hooks.ProviderError("del", err)
		}
		return transport.Record{}, false
	}
	return transport.Record{Key: key, Generation: gen, Fields: fields}, true
}

func (t *Transport) shard(key string) *epochShard {
	return &t.epochs[xxhash.Sum64String(key)%epochShards]
}

func (t *Transport) epoch(key string) uint64 {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.n
}

// fill stores rec unless a write dropped its key after epoch was taken.
func (t *Transport) fill(ctx context.Context, rec transport.Record, epoch uint64) {
	raw, err := wire.EncodeRecord(rec.Generation, rec.Fields)
	if err != nil {
		return
	}
	k := t.key(rec.Key)
	sh := t.shard(rec.Key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.n != epoch {
		return
	}
	ok, err := t.p.Set(ctx, k, raw, t.cost(k, raw), t.ttl)
	switch {
	case err != nil:
		t.hooks.ProviderError("set", err)
	case !ok:
		t.hooks.ProviderSetRejected(k)
	}
}

func (t *Transport) drop(ctx context.Context, key string) {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.n++
	if err := t.p.Del(ctx, t.key(key)); err != nil {
		t.hooks.ProviderError("del", err)
	}
}

// project copies the requested fields out of rec. transport.Project clones the
// values, so callers never alias provider-owned buffers.
func project(rec transport.Record, fields []string) transport.Record {
	return transport.Record{Key: rec.Key, Generation: rec.Generation, Fields: transport.Project(rec.Fields, fields)}
}
