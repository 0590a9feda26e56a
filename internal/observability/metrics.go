package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Task throughput and duration
//   - Per-step execution outcomes
//   - Permission prompt resolutions
//   - LLM request performance by provider
//   - IPC message flow and drops
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordTask("success", time.Since(start).Seconds())
type Metrics struct {
	// TaskCounter counts finished tasks.
	// Labels: outcome (success|failed|cancelled|rejected)
	TaskCounter *prometheus.CounterVec

	// TaskDuration measures end-to-end task latency in seconds.
	// Buckets: 0.1s, 0.5s, 1s, 5s, 15s, 30s, 60s, 120s, 300s
	TaskDuration prometheus.Histogram

	// StepCounter counts executed plan steps.
	// Labels: status (completed|failed|skipped)
	StepCounter *prometheus.CounterVec

	// PermissionPrompts counts permission prompts by how they resolved.
	// Labels: resolution (allow|deny|timeout)
	PermissionPrompts *prometheus.CounterVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider (ollama|lmstudio|openai|anthropic|gemini), status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// IPCMessageCounter counts envelopes crossing the IPC boundary.
	// Labels: type (message type), direction (inbound|outbound)
	IPCMessageCounter *prometheus.CounterVec

	// IPCDropped counts outbound envelopes dropped because the event
	// buffer was full.
	IPCDropped prometheus.Counter

	// ErrorCounter tracks errors by component and stable error code.
	// Labels: component (gateway|agent|planner|llm|profile|tool), code
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics against the given registerer. Tests use
// this with a throwaway registry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TaskCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_tasks_total",
				Help: "Total number of finished tasks by outcome",
			},
			[]string{"outcome"},
		),

		TaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "acta_task_duration_seconds",
				Help:    "End-to-end task duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),

		StepCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_steps_total",
				Help: "Total number of executed plan steps by status",
			},
			[]string{"status"},
		),

		PermissionPrompts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_permission_prompts_total",
				Help: "Total number of permission prompts by resolution",
			},
			[]string{"resolution"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_llm_requests_total",
				Help: "Total number of LLM requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acta_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		IPCMessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_ipc_messages_total",
				Help: "Total number of IPC envelopes by type and direction",
			},
			[]string{"type", "direction"},
		),

		IPCDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "acta_ipc_dropped_total",
				Help: "Total number of outbound envelopes dropped on a full buffer",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acta_errors_total",
				Help: "Total number of errors by component and code",
			},
			[]string{"component", "code"},
		),
	}
}

// RecordTask records a finished task with its outcome and duration.
func (m *Metrics) RecordTask(outcome string, durationSeconds float64) {
	m.TaskCounter.WithLabelValues(outcome).Inc()
	m.TaskDuration.Observe(durationSeconds)
}

// RecordStep records one executed plan step.
func (m *Metrics) RecordStep(status string) {
	m.StepCounter.WithLabelValues(status).Inc()
}

// RecordPermissionPrompt records how a permission prompt resolved.
func (m *Metrics) RecordPermissionPrompt(resolution string) {
	m.PermissionPrompts.WithLabelValues(resolution).Inc()
}

// RecordLLMRequest records an LLM request outcome and latency.
func (m *Metrics) RecordLLMRequest(provider, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordIPCMessage counts one envelope crossing the boundary.
func (m *Metrics) RecordIPCMessage(msgType, direction string) {
	m.IPCMessageCounter.WithLabelValues(msgType, direction).Inc()
}

// RecordIPCDropped counts one dropped outbound envelope.
func (m *Metrics) RecordIPCDropped() {
	m.IPCDropped.Inc()
}

// RecordError increments the error counter for a component and code.
func (m *Metrics) RecordError(component, code string) {
	m.ErrorCounter.WithLabelValues(component, code).Inc()
}
