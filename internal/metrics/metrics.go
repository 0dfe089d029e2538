// Package metrics provides Prometheus metrics for the permit agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	WorkflowTotal    *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec
	ApprovalsTotal   *prometheus.CounterVec
	RefetchesTotal   prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		WorkflowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_workflow_requests_total",
				Help: "Total permit workflow submissions by action and status.",
			},
			[]string{"action", "status"},
		),
		WorkflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permit_workflow_duration_seconds",
				Help:    "Workflow submission duration by action.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_approvals_total",
				Help: "Total approval decisions forwarded to the PMS by resource and result.",
			},
			[]string{"resource", "result"},
		),
		RefetchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "permit_snapshot_refetches_total",
				Help: "Full snapshot refetches after mutating actions.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.WorkflowTotal)
	reg.MustRegister(m.WorkflowDuration)
	reg.MustRegister(m.ApprovalsTotal)
	reg.MustRegister(m.RefetchesTotal)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWorkflow increments the workflow submission counter.
func (m *Metrics) RecordWorkflow(action, status string) {
	m.WorkflowTotal.WithLabelValues(action, status).Inc()
}

// RecordApproval increments the approval counter.
func (m *Metrics) RecordApproval(resource, result string) {
	m.ApprovalsTotal.WithLabelValues(resource, result).Inc()
}

// RecordRefetch increments the post-mutation refetch counter.
func (m *Metrics) RecordRefetch() {
	m.RefetchesTotal.Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDuration records workflow submission duration.
func (m *Metrics) ObserveDuration(action string, seconds float64) {
	m.WorkflowDuration.WithLabelValues(action).Observe(seconds)
}
