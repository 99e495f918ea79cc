// Package promhooks exports store and cached-transport events as Prometheus
// metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/transport/cached"
)

const namespace = "recstore"

type Hooks struct {
	conflicts   prometheus.Counter
	exhausted   prometheus.Counter
	retryDelay  prometheus.Histogram
	chunkFailed prometheus.Counter
	decodeFail  prometheus.Counter
	selfHeal    *prometheus.CounterVec
	setRejected prometheus.Counter
	providerErr *prometheus.CounterVec
}

var (
	_ recstore.Hooks = (*Hooks)(nil)
	_ cached.Hooks   = (*Hooks)(nil)
)

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil). On failure nothing stays registered.
func New(reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rmw",
			Name:      "conflict_retries_total",
			Help:      "Counter of read-modify-write cycles re-run after a generation conflict.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rmw",
			Name:      "conflict_exhausted_total",
			Help:      "Counter of read-modify-writes that ran out of retries.",
		}),
		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rmw",
			Name:      "retry_delay_seconds",
			Help:      "Bucketed histogram of backoff delays (s) before conflict retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		chunkFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "chunk_failures_total",
			Help:      "Counter of failed batch read chunks.",
		}),
		decodeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Counter of stored fields that could not be decoded.",
		}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "self_heal_total",
			Help:      "Counter of cache entries dropped on read or after a lost conditional write.",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "set_rejected_total",
			Help:      "Counter of cache fills rejected by the provider.",
		}),
		providerErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "provider_errors_total",
			Help:      "Counter of provider failures by operation.",
		}, []string{"op"}),
	}
	var done []prometheus.Collector
	for _, c := range h.collectors() {
		if err := reg.Register(c); err != nil {
			for _, r := range done {
				reg.Unregister(r)
			}
			return nil, err
		}
		done = append(done, c)
	}
	return h, nil
}

func (h *Hooks) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		h.conflicts, h.exhausted, h.retryDelay, h.chunkFailed,
		h.decodeFail, h.selfHeal, h.setRejected, h.providerErr,
	}
}

func (h *Hooks) ConflictRetry(_ string, _ int, delay time.Duration) {
	h.conflicts.Inc()
	h.retryDelay.Observe(delay.Seconds())
}

func (h *Hooks) ConflictExhausted(string, int)      { h.exhausted.Inc() }
func (h *Hooks) ChunkFailed(int, error)             { h.chunkFailed.Inc() }
func (h *Hooks) DecodeFailed(string, string, error) { h.decodeFail.Inc() }
func (h *Hooks) SelfHeal(_, reason string)          { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)         { h.setRejected.Inc() }
func (h *Hooks) ProviderError(op string, _ error)   { h.providerErr.WithLabelValues(op).Inc() }
