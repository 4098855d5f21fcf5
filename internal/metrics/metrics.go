// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/flowcraft/pkg/schema"
)

var (
	// SimulationEvents counts simulation events by type.
	SimulationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcraft_simulation_events_total",
			Help: "Total number of simulation events emitted",
		},
		[]string{"event_type"},
	)

	// ActiveSessions tracks the number of open simulation sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowcraft_active_sessions",
			Help: "Number of open simulation sessions",
		},
	)

	// ValidationRuns counts validator invocations by outcome.
	ValidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcraft_validation_runs_total",
			Help: "Total number of validation runs",
		},
		[]string{"result"},
	)

	// ValidationIssues counts reported issues by code and severity.
	ValidationIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcraft_validation_issues_total",
			Help: "Total number of validation issues reported",
		},
		[]string{"code", "severity"},
	)

	// FlowchartOperations counts persistence operations by kind and outcome.
	FlowchartOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowcraft_flowchart_operations_total",
			Help: "Total number of flowchart store operations",
		},
		[]string{"operation", "outcome"},
	)

	// HTTPRequestDuration observes API latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowcraft_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// StreamDropped counts events dropped on slow stream subscribers.
	StreamDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowcraft_stream_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
	)

	// PrunedEvents counts simulation events removed by maintenance.
	PrunedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowcraft_pruned_events_total",
			Help: "Simulation events removed by maintenance",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SimulationEvents,
		ActiveSessions,
		ValidationRuns,
		ValidationIssues,
		FlowchartOperations,
		HTTPRequestDuration,
		StreamDropped,
		PrunedEvents,
	)
}

// ObserveValidation records one validator run and its issues.
func ObserveValidation(r *schema.ValidationResult) {
	if r == nil {
		return
	}
	result := "valid"
	if !r.Valid() {
		result = "invalid"
	}
	ValidationRuns.WithLabelValues(result).Inc()
	for _, issue := range r.Errors {
		ValidationIssues.WithLabelValues(issue.Code, string(schema.SeverityError)).Inc()
	}
	for _, issue := range r.Warnings {
		ValidationIssues.WithLabelValues(issue.Code, string(schema.SeverityWarning)).Inc()
	}
}

// ObserveOperation records a store operation; err decides the outcome label.
func ObserveOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FlowchartOperations.WithLabelValues(op, outcome).Inc()
}

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route, status string, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
