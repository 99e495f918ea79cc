// Package memory provides an in-process Transport. It implements the full
// generation contract (CAS, TTL, delete resets the generation) and is used by
// tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/recstore/transport"
)

type entry struct {
	gen     uint64
	fields  map[string][]byte
	expires time.Time // zero => no TTL
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Store keeps records in a map guarded by a single RWMutex.
// Optional sweep loop prunes expired records; expired records are also
// treated as absent on access.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry
	now     func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ transport.Transport = (*Store)(nil)

// New returns an empty Store. When sweepInterval > 0 a background goroutine
// removes expired records; stop it with Close.
func New(sweepInterval time.Duration) *Store {
	s := &Store{
		records: make(map[string]*entry),
		now:     time.Now,
	}
	if sweepInterval > 0 {
		s.ticker = time.NewTicker(sweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Sweep()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// lookup returns the live entry for key; caller holds mu.
func (s *Store) lookup(key string, now time.Time) (*entry, bool) {
	e, ok := s.records[key]
	if !ok || e.expired(now) {
		return nil, false
	}
	return e, true
}

func (s *Store) Get(ctx context.Context, key string, fields []string) (transport.Record, error) {
	if err := ctx.Err(); err != nil {
		return transport.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lookup(key, s.now())
	if !ok {
		return transport.Record{}, transport.ErrNotFound
	}
	return transport.Record{Key: key, Generation: e.gen, Fields: transport.Project(e.fields, fields)}, nil
}

// BatchGet acquires the read lock once for the whole batch.
func (s *Store) BatchGet(ctx context.Context, keys []string, fields []string) ([]transport.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]transport.Record, len(keys))
	now := s.now()
	s.mu.RLock()
	for i, k := range keys {
		out[i].Key = k
		if e, ok := s.lookup(k, now); ok {
			out[i].Generation = e.gen
			out[i].Fields = transport.Project(e.fields, fields)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) ConditionalPut(ctx context.Context, key, field string, value []byte, expectedGen uint64, ttl time.Duration) (uint64, error) {
	return s.write(ctx, key, field, value, &expectedGen, ttl)
}

func (s *Store) Put(ctx context.Context, key, field string, value []byte, ttl time.Duration) (uint64, error) {
	return s.write(ctx, key, field, value, nil, ttl)
}

func (s *Store) write(ctx context.Context, key, field string, value []byte, expectedGen *uint64, ttl time.Duration) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if field == "" {
		return 0, transport.ErrInvalidField
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, now)
	var cur uint64
	if ok {
		cur = e.gen
	}
	if expectedGen != nil && *expectedGen != cur {
		return 0, transport.ErrGenerationMismatch
	}
	if !ok {
		e = &entry{fields: make(map[string][]byte, 1)}
		s.records[key] = e
	}
	e.fields[field] = append([]byte(nil), value...)
	e.gen = cur + 1
	e.expires = expiry(now, ttl)
	return e.gen, nil
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key, now)
	if !ok {
		return 0, transport.ErrNotFound
	}
	e.gen++
	e.expires = expiry(now, ttl)
	return e.gen, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key, s.now()); !ok {
		delete(s.records, key)
		return transport.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// Sweep removes expired records.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	s.mu.Lock()
	for k, e := range s.records {
		if e.expired(now) {
			delete(s.records, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Len returns the number of stored records, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
