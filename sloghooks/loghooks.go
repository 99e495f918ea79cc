// Package sloghooks logs store and cached-transport events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/transport/cached"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ConflictEvery uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	conflictCtr atomic.Uint64
	selfHealCtr atomic.Uint64
}

var (
	_ recstore.Hooks = (*Hooks)(nil)
	_ cached.Hooks   = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ConflictRetry(key string, attempt int, delay time.Duration) {
	if h.l == nil || !sample(h.opts.ConflictEvery, &h.conflictCtr) {
		return
	}
	h.l.Debug("recstore.conflict_retry",
		"key", h.redact(key),
		"attempt", attempt,
		"delay", delay)
}

func (h *Hooks) ConflictExhausted(key string, attempts int) {
	if h.l == nil {
		return
	}
	h.l.Warn("recstore.conflict_exhausted",
		"key", h.redact(key),
		"attempts", attempts)
}

func (h *Hooks) ChunkFailed(chunkSize int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("recstore.chunk_failed",
		"size", chunkSize,
		"err", err)
}

func (h *Hooks) DecodeFailed(key, field string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("recstore.decode_failed",
		"key", h.redact(key),
		"field", field,
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("recstore.cache_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("recstore.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) ProviderError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("recstore.provider_error",
		"op", op,
		"err", err)
}
