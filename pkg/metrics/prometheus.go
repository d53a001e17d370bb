// Package metrics provides Prometheus-based recording and querying of
// network coordination telemetry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentnet/pkg/network"
	"agentnet/pkg/proto"
)

// PrometheusRecorder implements the network.Recorder interface using
// Prometheus metrics.
type PrometheusRecorder struct {
	transitionsTotal   *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	propagationDepth   prometheus.Histogram
	propagationWidth   prometheus.Histogram
	propagationStalls  *prometheus.CounterVec
	recoveryActions    *prometheus.CounterVec
}

var _ network.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_transitions_total",
				Help: "Total number of applied state transitions by agent type and trigger",
			},
			[]string{"agent_type", "from", "to", "trigger"},
		),
		validationFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_validation_failures_total",
				Help: "Total number of rejected mutations by validation error kind",
			},
			[]string{"kind"},
		),
		propagationDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "network_propagation_depth",
				Help:    "Depth of dependent waves walked after an applied transition",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
		),
		propagationWidth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "network_propagation_advanced",
				Help:    "Number of agents auto-advanced per propagation wave",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
		),
		propagationStalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_propagation_stalls_total",
				Help: "Total number of propagation waves stopped by a failed auto-advance",
			},
			[]string{"agent_type"},
		),
		recoveryActions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_recovery_actions_total",
				Help: "Total number of recovery directives issued by action",
			},
			[]string{"action"},
		),
	}
}

// RecordTransition counts an applied state transition.
func (p *PrometheusRecorder) RecordTransition(agentType proto.AgentType, from, to proto.State, trigger proto.TriggerKind) {
	p.transitionsTotal.WithLabelValues(agentType.String(), from.String(), to.String(), string(trigger)).Inc()
}

// RecordValidationFailure counts a rejected mutation.
func (p *PrometheusRecorder) RecordValidationFailure(kind network.ValidationKind) {
	p.validationFailures.WithLabelValues(string(kind)).Inc()
}

// RecordPropagation observes the shape of a completed propagation wave.
func (p *PrometheusRecorder) RecordPropagation(depth, advanced int) {
	p.propagationDepth.Observe(float64(depth))
	p.propagationWidth.Observe(float64(advanced))
}

// RecordPropagationStall counts a wave that stopped early.
func (p *PrometheusRecorder) RecordPropagationStall(agentType proto.AgentType) {
	p.propagationStalls.WithLabelValues(agentType.String()).Inc()
}

// RecordRecovery counts an issued recovery directive.
func (p *PrometheusRecorder) RecordRecovery(action proto.RecoveryAction) {
	p.recoveryActions.WithLabelValues(string(action)).Inc()
}
