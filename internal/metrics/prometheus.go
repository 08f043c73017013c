package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_updates_processed_total",
			Help: "Total number of updates processed by workers",
		},
		[]string{"pool"},
	)

	WorkerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_handler_panics_total",
			Help: "Total number of recovered handler panics",
		},
		[]string{"pool"},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_goroutines",
			Help: "Number of active worker goroutines per pool",
		},
		[]string{"pool"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ queue depth",
		},
		[]string{"queue"},
	)

	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_total",
			Help: "Admission attempts by outcome",
		},
		[]string{"outcome"},
	)

	SpawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spawn_failures_total",
			Help: "Instance start failures by stage",
		},
		[]string{"stage"},
	)

	SpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spawn_duration_seconds",
			Help:    "Time spent starting a tenant instance",
			Buckets: prometheus.DefBuckets,
		},
	)

	TenantsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenants_running",
			Help: "Number of tenant sessions owned by the runtime",
		},
	)

	OrphansReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_orphans_released_total",
			Help: "Running sessions stopped because the directory does not know them",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(
		WorkerProcessed,
		WorkerPanics,
		WorkerActive,
		QueueDepth,
		Admissions,
		SpawnFailures,
		SpawnDuration,
		TenantsRunning,
		OrphansReleased,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
