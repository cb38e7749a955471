// Package metrics provides Prometheus metrics for vinledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRunsTotal tracks reconciliation runs by outcome
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinledger",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status",
		},
		[]string{"status"},
	)

	// PipelineRunDuration tracks reconciliation run duration in seconds
	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vinledger",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// PipelineRows tracks rows produced by each reconciliation stage
	PipelineRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinledger",
			Subsystem: "pipeline",
			Name:      "rows_total",
			Help:      "Rows seen by the reconciliation pipeline by outcome",
		},
		[]string{"outcome"},
	)

	// RecordOperationsTotal tracks record store operations
	RecordOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinledger",
			Subsystem: "records",
			Name:      "operations_total",
			Help:      "Total number of record store operations",
		},
		[]string{"table", "operation", "status"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vinledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// EventsPublishedTotal tracks change events handed to the broker
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vinledger",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of record change events published",
		},
		[]string{"event_type", "status"},
	)
)

// RecordOperation increments the record store counter for one operation.
func RecordOperation(table, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RecordOperationsTotal.WithLabelValues(table, operation, status).Inc()
}
