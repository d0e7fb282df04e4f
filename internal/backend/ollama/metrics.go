package ollama

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for inference outcome.
const (
	statusOK     = "ok"
	statusFailed = "failed"
)

var (
	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avs_ollama_inference_seconds",
			Help:    "Duration of ollama generate calls, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	activeInferences = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avs_ollama_active_inferences",
			Help: "Number of ollama generate calls in flight.",
		},
	)

	inferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_ollama_inferences_total",
			Help: "Total number of ollama generate calls, by model and outcome.",
		},
		[]string{"model", "status"},
	)
)

func init() {
	prometheus.MustRegister(inferenceDuration)
	prometheus.MustRegister(activeInferences)
	prometheus.MustRegister(inferencesTotal)
}
