// Package observability wires the teacher's Prometheus-metrics-plus-OTLP-tracing
// stack to localflow's own domain: chat turns, draft approvals, and tool
// executions instead of multi-channel message gateways.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the server exposes on /metrics.
type Metrics struct {
	ChatTurns *prometheus.CounterVec

	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec

	DraftsCreated    *prometheus.CounterVec
	ApprovalsCreated prometheus.Counter

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestCounter  *prometheus.CounterVec

	RAGIndexFiles prometheus.Gauge
	RAGSearches   *prometheus.CounterVec
}

// NewMetrics registers every collector against the default registry. Call
// once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ChatTurns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_chat_turns_total",
				Help: "Total chat turns handled, by outcome (drafted|permission_required|replied|error)",
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localflow_llm_request_duration_seconds",
				Help:    "Duration of LLM provider calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "status"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_llm_requests_total",
				Help: "Total LLM provider calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		DraftsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_drafts_created_total",
				Help: "Total drafts created, by draft type",
			},
			[]string{"draft_type"},
		),
		ApprovalsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "localflow_approvals_created_total",
				Help: "Total drafts approved and locked",
			},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localflow_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localflow_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status_code"},
		),

		RAGIndexFiles: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "localflow_rag_indexed_files",
				Help: "Number of files in the retrieval index as of the last rebuild",
			},
		),
		RAGSearches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localflow_rag_searches_total",
				Help: "Total retrieval-index searches by kind (search|find_files)",
			},
			[]string{"kind"},
		),
	}
}

// RecordChatTurn increments the chat-turn counter for the given outcome.
func (m *Metrics) RecordChatTurn(outcome string) {
	m.ChatTurns.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records one provider call's duration and outcome.
func (m *Metrics) RecordLLMRequest(provider, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordDraftCreated increments the per-draft-type creation counter.
func (m *Metrics) RecordDraftCreated(draftType string) {
	m.DraftsCreated.WithLabelValues(draftType).Inc()
}

// RecordApproval increments the approvals counter.
func (m *Metrics) RecordApproval() {
	m.ApprovalsCreated.Inc()
}

// RecordToolExecution records one tool invocation's duration and outcome.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordHTTPRequest records one HTTP request's duration and status.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// SetRAGIndexFiles sets the current indexed-file count gauge.
func (m *Metrics) SetRAGIndexFiles(n int) {
	m.RAGIndexFiles.Set(float64(n))
}

// RecordRAGSearch increments the retrieval-search counter for the given kind.
func (m *Metrics) RecordRAGSearch(kind string) {
	m.RAGSearches.WithLabelValues(kind).Inc()
}
