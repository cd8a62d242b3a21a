package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion core.
type Metrics struct {
	EventsIngested *prometheus.CounterVec // labels: source
	RecordsDropped *prometheus.CounterVec // labels: source, reason={malformed,no_coordinates}
	FetchFailures  *prometheus.CounterVec // labels: source
	CycleDuration  *prometheus.HistogramVec

	PublishTotal    *prometheus.CounterVec // labels: channel
	PublishFailures *prometheus.CounterVec // labels: channel, sink={broker}
	BridgeMessages  *prometheus.CounterVec // labels: channel

	CacheSize     *prometheus.GaugeVec // labels: kind
	StoreWrites   *prometheus.CounterVec
	StoreFailures *prometheus.CounterVec

	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all core metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EventsIngested,
		m.RecordsDropped,
		m.FetchFailures,
		m.CycleDuration,
		m.PublishTotal,
		m.PublishFailures,
		m.BridgeMessages,
		m.CacheSize,
		m.StoreWrites,
		m.StoreFailures,
		m.SchedulerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "events_ingested_total",
			Help:      "Normalized events accepted per source feed.",
		}, []string{"source"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "records_dropped_total",
			Help:      "Upstream records dropped at the adapter boundary.",
		}, []string{"source", "reason"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "fetch_failures_total",
			Help:      "Whole-feed fetch failures per source.",
		}, []string{"source"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crisis_ingest",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one fetch-normalize-enrich-publish cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "publish_total",
			Help:      "Payloads published per channel.",
		}, []string{"channel"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "publish_failures_total",
			Help:      "Broker publish failures per channel; local delivery is unaffected.",
		}, []string{"channel", "sink"}),
		BridgeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "bridge_messages_total",
			Help:      "Broker messages drained and re-emitted locally.",
		}, []string{"channel"}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crisis_ingest",
			Name:      "cache_size",
			Help:      "Current item count per state cache collection.",
		}, []string{"kind"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "store_writes_total",
			Help:      "Successful durable store upsert batches.",
		}, []string{"kind"}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisis_ingest",
			Name:      "store_failures_total",
			Help:      "Failed durable store operations (degraded, not fatal).",
		}, []string{"kind"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crisis_ingest",
			Name:      "scheduler_running",
			Help:      "1 while the ingestion scheduler is active.",
		}),
	}
}
