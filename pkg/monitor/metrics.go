package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the monitor service. All record
// methods are safe on a nil *Metrics, so wiring metrics stays optional.
type Metrics struct {
	// Gauges
	DedupSize      prometheus.Gauge
	DisabledChains prometheus.Gauge
	LastProcessed  *prometheus.GaugeVec

	// Counters
	ScanCyclesTotal      *prometheus.CounterVec
	LogFetchesTotal      *prometheus.CounterVec
	EventsTotal          *prometheus.CounterVec
	EventsSkippedTotal   *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	PublishErrorsTotal   *prometheus.CounterVec
	RefreshFailuresTotal prometheus.Counter

	// Histograms
	CycleDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all monitor metrics on the default
// registry. Call it once per process.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stealth_monitor"
	}

	return &Metrics{
		DedupSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_size",
			Help:      "Current number of event identities in the dedup set",
		}),
		DisabledChains: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disabled_chains",
			Help:      "Number of chains disabled after repeated failures",
		}),
		LastProcessed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Last fully processed block per chain",
		}, []string{"chain"}),

		ScanCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Total scan cycles by chain and outcome",
		}, []string{"chain", "outcome"}),
		LogFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_fetches_total",
			Help:      "Total log range fetches by chain and result",
		}, []string{"chain", "result"}),
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total decoded stealth events by chain and kind",
		}, []string{"chain", "kind"}),
		EventsSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Total logs skipped as duplicates or undecodable, by chain",
		}, []string{"chain"}),
		NotificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total notification decisions by outcome",
		}, []string{"outcome"}),
		PublishErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total event bus publish failures by chain",
		}, []string{"chain"}),
		RefreshFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_refresh_failures_total",
			Help:      "Total failed user registry refreshes",
		}),

		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"chain"}),
	}
}

// RecordScanCycle counts one finished cycle
func (m *Metrics) RecordScanCycle(chain, outcome string) {
	if m == nil {
		return
	}
	m.ScanCyclesTotal.WithLabelValues(chain, outcome).Inc()
}

// RecordLogFetch counts one window fetch
func (m *Metrics) RecordLogFetch(chain string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LogFetchesTotal.WithLabelValues(chain, result).Inc()
}

// RecordEvent counts one decoded event
func (m *Metrics) RecordEvent(chain, kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(chain, kind).Inc()
}

// RecordEventsSkipped counts logs dropped before decoding succeeded
func (m *Metrics) RecordEventsSkipped(chain string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsSkippedTotal.WithLabelValues(chain).Add(float64(n))
}

// RecordNotification counts one dispatcher decision
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordPublishError counts one event bus publish failure
func (m *Metrics) RecordPublishError(chain string) {
	if m == nil {
		return
	}
	m.PublishErrorsTotal.WithLabelValues(chain).Inc()
}

// RecordRefreshFailure counts one failed user registry refresh
func (m *Metrics) RecordRefreshFailure() {
	if m == nil {
		return
	}
	m.RefreshFailuresTotal.Inc()
}

// SetLastProcessed updates the per-chain cursor gauge
func (m *Metrics) SetLastProcessed(chain string, block uint64) {
	if m == nil {
		return
	}
	m.LastProcessed.WithLabelValues(chain).Set(float64(block))
}

// SetDedupSize updates the dedup set size gauge
func (m *Metrics) SetDedupSize(n int) {
	if m == nil {
		return
	}
	m.DedupSize.Set(float64(n))
}

// AddDisabledChain bumps the disabled chains gauge
func (m *Metrics) AddDisabledChain() {
	if m == nil {
		return
	}
	m.DisabledChains.Inc()
}

// ObserveCycle records one cycle duration
func (m *Metrics) ObserveCycle(chain string, seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.WithLabelValues(chain).Observe(seconds)
}
