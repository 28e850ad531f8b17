package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taxi"

var (
	// stageHitsTotal counts which pipeline stage answered a message.
	// Labels: pipeline (in_ride, pre_ride, ui_action, trigger, unity), stage
	stageHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_hits_total",
		Help:      "Messages answered per pipeline stage",
	}, []string{"pipeline", "stage"})

	// toolExecutionsTotal counts tool executions.
	// Labels: tool, status (ok, error, unknown)
	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Tool executions by tool id and status",
	}, []string{"tool", "status"})

	// llmCallsTotal counts completions by provider and status (ok, error).
	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM completions by provider and status",
	}, []string{"provider", "status"})

	// llmLatencySeconds measures completion latency including retries.
	llmLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "LLM completion latency including retries",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	// llmRetriesTotal counts rate-limited attempts that were retried.
	llmRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "retries_total",
		Help:      "Rate limited LLM attempts that were retried",
	}, []string{"provider"})

	// sideEffectsDroppedTotal counts simulator commands that were not forwarded.
	// Labels: reason (no_ride, no_unity_id, disconnected)
	sideEffectsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "side_effects",
		Name:      "dropped_total",
		Help:      "Simulator commands dropped before forwarding",
	}, []string{"reason"})

	// activeConnections tracks open websocket connections by role (chat, unity).
	activeConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Open websocket connections by role",
	}, []string{"role"})
)

// RecordStage records the stage that produced a response.
func RecordStage(pipeline, stage string) {
	stageHitsTotal.WithLabelValues(pipeline, stage).Inc()
}

// RecordTool records a tool execution outcome.
func RecordTool(tool, status string) {
	toolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// RecordLLMCall records a completion and its latency.
func RecordLLMCall(provider string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(provider, status).Inc()
	llmLatencySeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordLLMRetry records one rate limited attempt.
func RecordLLMRetry(provider string) {
	llmRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordDroppedSideEffect records a command that never reached the simulator.
func RecordDroppedSideEffect(reason string) {
	sideEffectsDroppedTotal.WithLabelValues(reason).Inc()
}

// ConnectionOpened and ConnectionClosed keep the websocket gauge current.
func ConnectionOpened(role string) { activeConnections.WithLabelValues(role).Inc() }

func ConnectionClosed(role string) { activeConnections.WithLabelValues(role).Dec() }
