package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collaborative store
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextflow_mutations_total",
		Help: "Committed store mutations by operation",
	}, []string{"op"})

	MissingEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextflow_missing_entity_total",
		Help: "Mutations skipped because the target entity does not exist",
	}, []string{"op", "kind"})

	History = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextflow_history_steps_total",
		Help: "Undo and redo steps applied",
	}, []string{"action"})

	RemoteUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contextflow_remote_updates_total",
		Help: "Remote document updates integrated",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contextflow_active_sessions",
		Help: "Collaborative sessions currently installed",
	})

	// HTTP
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextflow_http_requests_total",
		Help: "HTTP requests by method and status",
	}, []string{"method", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contextflow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
