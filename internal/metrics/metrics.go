// Package metrics exposes cache activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/clinic-swr-cache/types"
)

const namespace = "clinic_admin_cache"

// Prometheus implements types.Metrics. Every series is labelled by family.
type Prometheus struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	staleServes     *prometheus.CounterVec
	revalidations   *prometheus.CounterVec
	loadFailures    *prometheus.CounterVec
	cooldownRejects *prometheus.CounterVec
	discardedWrites *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
}

var _ types.Metrics = (*Prometheus)(nil)

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"family"})
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		hits:            counter("hits_total", "Fresh cached values served"),
		misses:          counter("misses_total", "Lookups that waited for a load"),
		staleServes:     counter("stale_serves_total", "Stale cached values served while revalidating"),
		revalidations:   counter("revalidations_total", "Background revalidations started"),
		loadFailures:    counter("load_failures_total", "Loader calls that returned an error"),
		cooldownRejects: counter("cooldown_rejects_total", "Loads suppressed by a cooldown"),
		discardedWrites: counter("discarded_writes_total", "Load results dropped as outdated"),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Histogram of loader call durations in seconds by family",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms up to ~5s
		}, []string{"family"}),
	}

	for _, c := range []prometheus.Collector{
		m.hits, m.misses, m.staleServes, m.revalidations,
		m.loadFailures, m.cooldownRejects, m.discardedWrites, m.loadDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) Hit(f string)            { m.hits.WithLabelValues(f).Inc() }
func (m *Prometheus) Miss(f string)           { m.misses.WithLabelValues(f).Inc() }
func (m *Prometheus) StaleServe(f string)     { m.staleServes.WithLabelValues(f).Inc() }
func (m *Prometheus) Revalidate(f string)     { m.revalidations.WithLabelValues(f).Inc() }
func (m *Prometheus) LoadFailure(f string)    { m.loadFailures.WithLabelValues(f).Inc() }
func (m *Prometheus) CooldownReject(f string) { m.cooldownRejects.WithLabelValues(f).Inc() }
func (m *Prometheus) DiscardedWrite(f string) { m.discardedWrites.WithLabelValues(f).Inc() }

func (m *Prometheus) LoadDuration(f string, d time.Duration) {
	m.loadDuration.WithLabelValues(f).Observe(d.Seconds())
}

// WatchSize registers a gauge reporting size() on every scrape.
func WatchSize(reg prometheus.Registerer, size func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entries",
		Help:      "Number of cached entries",
	}, func() float64 { return float64(size()) }))
}
