package poller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the polling subsystem.
type Metrics struct {
	Ticks         prometheus.Counter
	Samples       prometheus.Counter
	FetchErrors   prometheus.Counter
	StoreErrors   prometheus.Counter
	ActiveJobs    prometheus.Gauge
	FetchDuration prometheus.Histogram
}

// NewMetrics creates and registers the poller instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsewatch_ticks_total",
			Help: "Total polling ticks executed (including skipped and failed).",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsewatch_samples_total",
			Help: "Total samples successfully appended.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsewatch_fetch_errors_total",
			Help: "Total VK API fetch failures.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulsewatch_store_errors_total",
			Help: "Total storage failures during ticks.",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulsewatch_active_jobs",
			Help: "Number of polling jobs currently registered.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulsewatch_fetch_duration_seconds",
			Help:    "Latency of VK API fetch calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	reg.MustRegister(m.Ticks, m.Samples, m.FetchErrors, m.StoreErrors, m.ActiveJobs, m.FetchDuration)
	return m
}
