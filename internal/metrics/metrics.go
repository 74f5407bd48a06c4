// Package metrics exposes Prometheus instrumentation for the monitor loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Cycles         prometheus.Counter
	CycleFailures  prometheus.Counter
	FetchFailures  *prometheus.CounterVec
	ClaimsDetected prometheus.Counter
	ClaimedSOL     prometheus.Counter
	ClaimAnomalies prometheus.Counter
	IdleAlerts     prometheus.Counter
	NotifyFailures *prometheus.CounterVec
	TrackedEntries prometheus.Gauge
	TokensObserved prometheus.Gauge
	CycleDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the metrics and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_cycles_total",
			Help: "Total number of monitoring cycles run",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_cycle_failures_total",
			Help: "Total number of monitoring cycles aborted by an error",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimwatch_fetch_failures_total",
			Help: "Total number of failed upstream fetches per source",
		}, []string{"source"}),
		ClaimsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_claims_detected_total",
			Help: "Total number of claim events detected",
		}),
		ClaimedSOL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_claimed_sol_total",
			Help: "Sum of detected claim deltas in SOL",
		}),
		ClaimAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_claim_anomalies_total",
			Help: "Total number of decreasing cumulative claim amounts seen upstream",
		}),
		IdleAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimwatch_idle_alerts_total",
			Help: "Total number of idle notifications emitted",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimwatch_notify_failures_total",
			Help: "Total number of failed notification deliveries per kind",
		}, []string{"kind"}),
		TrackedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "claimwatch_tracked_entries",
			Help: "Number of (token, creator) pairs held by the claim tracker",
		}),
		TokensObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "claimwatch_tokens_observed",
			Help: "Number of tokens returned by the fee dataset in the last cycle",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimwatch_cycle_duration_seconds",
			Help:    "Time taken by one monitoring cycle in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Cycles, m.CycleFailures, m.FetchFailures, m.ClaimsDetected, m.ClaimedSOL,
		m.ClaimAnomalies, m.IdleAlerts, m.NotifyFailures, m.TrackedEntries,
		m.TokensObserved, m.CycleDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
