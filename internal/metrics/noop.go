package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveHTTPRequest is a no-op.
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}

// IncSessionCacheHit is a no-op.
func (n *NoopRecorder) IncSessionCacheHit() {}

// IncSessionCacheMiss is a no-op.
func (n *NoopRecorder) IncSessionCacheMiss() {}

// AddMessagesAppended is a no-op.
func (n *NoopRecorder) AddMessagesAppended(count int) {}

// IncLoopDecision is a no-op.
func (n *NoopRecorder) IncLoopDecision(decision string) {}

// IncLoopReset is a no-op.
func (n *NoopRecorder) IncLoopReset() {}

// ObserveMCPProbe is a no-op.
func (n *NoopRecorder) ObserveMCPProbe(result string, duration time.Duration) {}

// IncActivityEventPublished is a no-op.
func (n *NoopRecorder) IncActivityEventPublished(status string) {}

// IncActivityEventProcessed is a no-op.
func (n *NoopRecorder) IncActivityEventProcessed(status string) {}

// ObserveActivityBatchSize is a no-op.
func (n *NoopRecorder) ObserveActivityBatchSize(size int) {}

// ObserveActivityBatchDuration is a no-op.
func (n *NoopRecorder) ObserveActivityBatchDuration(duration time.Duration) {}

// SetActivityQueueDepth is a no-op.
func (n *NoopRecorder) SetActivityQueueDepth(depth int64) {}

// ObserveActivityIngestLag is a no-op.
func (n *NoopRecorder) ObserveActivityIngestLag(lag time.Duration) {}
