// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Session metrics
	IncSessionCacheHit()
	IncSessionCacheMiss()

	// Conversation and agent loop metrics
	AddMessagesAppended(n int)
	IncLoopDecision(decision string) // decision: "approved" or "rejected"
	IncLoopReset()

	// MCP metrics
	ObserveMCPProbe(result string, duration time.Duration) // result: "ok" or "unreachable"

	// Activity pipeline metrics
	IncActivityEventPublished(status string) // status: "success" or "dropped"
	IncActivityEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveActivityBatchSize(size int)
	ObserveActivityBatchDuration(duration time.Duration)
	SetActivityQueueDepth(depth int64)
	ObserveActivityIngestLag(lag time.Duration)
}
