package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters a Service reports to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Hits            prometheus.Counter
	Misses          prometheus.Counter
	DecodeErrors    prometheus.Counter
	WriteFailures   prometheus.Counter
	KeysInvalidated prometheus.Counter
	StoreErrors     *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them on reg.
// A nil reg creates unregistered counters.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses, including reads degraded by store errors",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_decode_errors_total",
			Help:      "Total number of cached payloads that failed to decode",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Total number of cache writes and invalidations that did not reach the store",
		}),
		KeysInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_keys_invalidated_total",
			Help:      "Total number of keys removed from the cache",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_store_errors_total",
			Help:      "Total number of store errors by operation",
		}, []string{"op"}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.Hits, m.Misses, m.DecodeErrors, m.WriteFailures, m.KeysInvalidated, m.StoreErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) writeFailure() {
	if m != nil {
		m.WriteFailures.Inc()
	}
}

func (m *Metrics) invalidated(n int64) {
	if m != nil && n > 0 {
		m.KeysInvalidated.Add(float64(n))
	}
}

func (m *Metrics) storeError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}
