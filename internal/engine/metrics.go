package engine

import "github.com/prometheus/client_golang/prometheus"

// Job outcomes.
const (
	outcomeAnswered  = "answered"
	outcomeRejected  = "rejected"
	outcomeNoBackend = "no_backend"
	outcomeFailed    = "failed"
	outcomeTimedOut  = "timed_out"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_worker_jobs_total",
			Help: "Total number of task requests handled by the worker, by outcome.",
		},
		[]string{"outcome"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avs_worker_job_seconds",
			Help:    "Time from receiving a task request to answering it, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avs_worker_active_jobs",
			Help: "Number of task requests being worked on.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(activeJobs)

	for _, o := range []string{outcomeAnswered, outcomeRejected, outcomeNoBackend, outcomeFailed, outcomeTimedOut} {
		jobsTotal.WithLabelValues(o)
	}
}
