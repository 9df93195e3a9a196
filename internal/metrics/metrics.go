// Package metrics registers the queue's Prometheus collectors on the default
// registry. Expose them via promhttp.Handler (the server binary mounts it at
// /metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishedJobs counts jobs pushed into the pipeline, per publisher locus.
	PublishedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mq_published_jobs_total",
		Help: "Jobs pushed into the worker pipeline, by publisher.",
	}, []string{"publisher"})

	// ExecutedJobs counts executor steps by outcome.
	ExecutedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mq_executed_jobs_total",
		Help: "Executor steps, by outcome (continued, retried, done, failed, recovered, started, cleanup, conflict).",
	}, []string{"outcome"})

	// PollDuration observes one poll-and-publish cycle, per publisher locus.
	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mq_poll_duration_seconds",
		Help:    "Duration of one publisher poll cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"publisher"})

	// InFlight tracks the number of refs currently in the sieve.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mq_inflight_refs",
		Help: "Refs currently traversing the pipeline.",
	})

	serverInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mq_server_info",
		Help: "Build information of the running queue server.",
	}, []string{"version"})
)

// Init records the server info gauge once at startup.
func Init(version string) {
	serverInfo.WithLabelValues(version).Set(1)
}
