// Package metrics provides Prometheus metrics for the equipment controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	// Reconciliation metrics
	PollsTotal   *prometheus.CounterVec
	PollDuration *prometheus.HistogramVec
	PollErrors   *prometheus.CounterVec

	// Fault metrics
	FaultTransitions *prometheus.CounterVec
	FaultActive      *prometheus.GaugeVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	InterlockBlocks *prometheus.CounterVec

	// Gateway metrics
	PointReads      *prometheus.CounterVec
	PointReadErrors *prometheus.CounterVec
	PointWrites     *prometheus.CounterVec

	// Registry-level metrics
	ControllersRegistered prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	return &Registry{
		PollsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "polls_total",
			Help:      "Total reconciliation cycles per equipment",
		}, []string{"equipment", "status"}),
		PollDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "poll_duration_seconds",
			Help:      "Reconciliation cycle duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"equipment"}),
		PollErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "poll_errors_total",
			Help:      "Reconciliation cycles aborted by read errors",
		}, []string{"equipment", "error_type"}),
		FaultTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "fault_transitions_total",
			Help:      "Fault value changes per equipment and new fault",
		}, []string{"equipment", "fault"}),
		FaultActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "fault_active",
			Help:      "1 while the equipment has a published fault",
		}, []string{"equipment"}),
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Equipment commands by action and result",
		}, []string{"equipment", "action", "result"}),
		InterlockBlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "controller",
			Name:      "interlock_blocks_total",
			Help:      "Start commands rejected by the interlock oracle",
		}, []string{"equipment"}),
		PointReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "gateway",
			Name:      "point_reads_total",
			Help:      "Point reads by backend",
		}, []string{"backend"}),
		PointReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "gateway",
			Name:      "point_read_errors_total",
			Help:      "Point read errors by backend and class",
		}, []string{"backend", "error_type"}),
		PointWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poucon",
			Subsystem: "gateway",
			Name:      "point_writes_total",
			Help:      "Point writes by backend and result",
		}, []string{"backend", "result"}),
		ControllersRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "poucon",
			Subsystem: "supervisor",
			Name:      "controllers_registered",
			Help:      "Number of registered equipment controllers",
		}),
	}
}

// RecordPoll records one reconciliation cycle outcome.
func (r *Registry) RecordPoll(equipment, status string, seconds float64) {
	if r == nil {
		return
	}
	r.PollsTotal.WithLabelValues(equipment, status).Inc()
	r.PollDuration.WithLabelValues(equipment).Observe(seconds)
}

// RecordPollError records a cycle aborted by a read failure.
func (r *Registry) RecordPollError(equipment, errorType string) {
	if r == nil {
		return
	}
	r.PollErrors.WithLabelValues(equipment, errorType).Inc()
}

// RecordFaultTransition records a fault value change.
func (r *Registry) RecordFaultTransition(equipment, fault string, active bool) {
	if r == nil {
		return
	}
	r.FaultTransitions.WithLabelValues(equipment, fault).Inc()
	v := 0.0
	if active {
		v = 1.0
	}
	r.FaultActive.WithLabelValues(equipment).Set(v)
}

// RecordCommand records a command attempt.
func (r *Registry) RecordCommand(equipment, action, result string) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(equipment, action, result).Inc()
}

// RecordInterlockBlock records a turn-on rejected by the interlock oracle.
func (r *Registry) RecordInterlockBlock(equipment string) {
	if r == nil {
		return
	}
	r.InterlockBlocks.WithLabelValues(equipment).Inc()
}

// RecordPointRead records a gateway read.
func (r *Registry) RecordPointRead(backend, errorType string) {
	if r == nil {
		return
	}
	r.PointReads.WithLabelValues(backend).Inc()
	if errorType != "" {
		r.PointReadErrors.WithLabelValues(backend, errorType).Inc()
	}
}

// RecordPointWrite records a gateway write.
func (r *Registry) RecordPointWrite(backend, result string) {
	if r == nil {
		return
	}
	r.PointWrites.WithLabelValues(backend, result).Inc()
}
