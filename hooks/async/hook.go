// Package asynchook runs store and cached-transport hooks on a bounded queue
// served by worker goroutines, so slow sinks never block the caller. Events are
// dropped when the queue is full.
//
// Usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//		ConflictEvery: 10, // sample logs: ~every 10th conflict retry
//		SelfHealEvery: 1,  // log every cache self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	tr, _ := cached.New(cached.Config{Inner: inner, Provider: p, Hooks: hooks})
//	st, _ := recstore.New[int64](recstore.Options[int64]{
//		Transport: tr,
//		Codec:     codec.Int64{},
//		Hooks:     hooks, // or raw for synchronous delivery
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/transport/cached"
)

// Inner is what Hooks forwards to: store events plus cached-transport events.
type Inner interface {
	recstore.Hooks
	cached.Hooks
}

// Hooks runs inner callbacks on worker goroutines. Events are dropped when the
// queue is full.
type Hooks struct {
	inner   Inner
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var (
	_ recstore.Hooks = (*Hooks)(nil)
	_ cached.Hooks   = (*Hooks)(nil)
)

func New(inner Inner, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on a closed queue
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ConflictRetry(k string, a int, d time.Duration) {
	h.try(func() { h.inner.ConflictRetry(k, a, d) })
}
func (h *Hooks) ConflictExhausted(k string, n int) { h.try(func() { h.inner.ConflictExhausted(k, n) }) }
func (h *Hooks) ChunkFailed(n int, err error)      { h.try(func() { h.inner.ChunkFailed(n, err) }) }
func (h *Hooks) DecodeFailed(k, f string, err error) {
	h.try(func() { h.inner.DecodeFailed(k, f, err) })
}
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) ProviderError(op string, e error) { h.try(func() { h.inner.ProviderError(op, e) }) }
