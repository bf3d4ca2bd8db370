package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	stageOutcomes       *prometheus.CounterVec
	workerTasksTotal    *prometheus.CounterVec
	workerTasksInFlight prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API and background workers.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aita",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aita",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aita",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aita",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of analysis pipeline stages.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"})

		stageOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aita",
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Analysis pipeline stage results by outcome.",
		}, []string{"stage", "outcome"})

		workerTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aita",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Background tasks finished by name and outcome.",
		}, []string{"task", "outcome"})

		workerTasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aita",
			Subsystem: "worker",
			Name:      "tasks_in_flight",
			Help:      "Background tasks currently holding a worker slot.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			stageDuration, stageOutcomes,
			workerTasksTotal, workerTasksInFlight,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// StageDuration exposes the pipeline stage latency histogram.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDuration
}

// StageOutcomes exposes the pipeline stage outcome counter.
func StageOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return stageOutcomes
}

// WorkerTasks exposes the background task counter.
func WorkerTasks() *prometheus.CounterVec {
	RegisterMetrics()
	return workerTasksTotal
}

// WorkerInFlight exposes the in-flight task gauge.
func WorkerInFlight() prometheus.Gauge {
	RegisterMetrics()
	return workerTasksInFlight
}
