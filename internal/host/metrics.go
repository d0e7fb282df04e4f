package host

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_calls_total",
			Help: "Total number of contract calls by method and result.",
		},
		[]string{"method", "result"},
	)

	yieldsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avs_yields_created_total",
			Help: "Total number of committed suspension points.",
		},
	)

	yieldsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avs_yields_pending",
			Help: "Number of suspension points waiting for a resume or timeout.",
		},
	)

	yieldsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_yields_finished_total",
			Help: "Total number of suspension points finished, by outcome.",
		},
		[]string{"status"},
	)

	transfersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avs_transfers_total",
			Help: "Total number of reward transfers executed.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_events_published_total",
			Help: "Total number of events broadcast, by event name.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal)
	prometheus.MustRegister(yieldsCreated)
	prometheus.MustRegister(yieldsPending)
	prometheus.MustRegister(yieldsFinished)
	prometheus.MustRegister(transfersTotal)
	prometheus.MustRegister(eventsPublished)

	// Pre-initialize outcome labels so they appear in /metrics before the first yield finishes.
	yieldsFinished.WithLabelValues("resolved")
	yieldsFinished.WithLabelValues("timed_out")
}
