package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests             uint64
	HTTPRequestsByStatus     map[int]uint64
	SessionCacheHits         uint64
	SessionCacheMisses       uint64
	MessagesAppended         uint64
	LoopDecisions            map[string]uint64
	LoopResets               uint64
	MCPProbes                map[string]uint64
	ActivityEventsPublished  map[string]uint64
	ActivityEventsProcessed  map[string]uint64
	ActivityBatchCount       uint64
	ActivityQueueDepth       int64
	ActivityIngestLagCount   uint64
	ActivityIngestLagTotalNs int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests             uint64
	sessionCacheHits         uint64
	sessionCacheMisses       uint64
	messagesAppended         uint64
	loopResets               uint64
	activityBatchCount       uint64
	activityQueueDepth       int64
	activityIngestLagCount   uint64
	activityIngestLagTotalNs int64

	mu              sync.Mutex
	httpByStatus    map[int]uint64
	loopDecisions   map[string]uint64
	mcpProbes       map[string]uint64
	activityPublish map[string]uint64
	activityProcess map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		httpByStatus:    make(map[int]uint64),
		loopDecisions:   make(map[string]uint64),
		mcpProbes:       make(map[string]uint64),
		activityPublish: make(map[string]uint64),
		activityProcess: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := make(map[int]uint64, len(m.httpByStatus))
	for k, v := range m.httpByStatus {
		byStatus[k] = v
	}

	return Snapshot{
		HTTPRequests:             atomic.LoadUint64(&m.httpRequests),
		HTTPRequestsByStatus:     byStatus,
		SessionCacheHits:         atomic.LoadUint64(&m.sessionCacheHits),
		SessionCacheMisses:       atomic.LoadUint64(&m.sessionCacheMisses),
		MessagesAppended:         atomic.LoadUint64(&m.messagesAppended),
		LoopDecisions:            copyCounts(m.loopDecisions),
		LoopResets:               atomic.LoadUint64(&m.loopResets),
		MCPProbes:                copyCounts(m.mcpProbes),
		ActivityEventsPublished:  copyCounts(m.activityPublish),
		ActivityEventsProcessed:  copyCounts(m.activityProcess),
		ActivityBatchCount:       atomic.LoadUint64(&m.activityBatchCount),
		ActivityQueueDepth:       atomic.LoadInt64(&m.activityQueueDepth),
		ActivityIngestLagCount:   atomic.LoadUint64(&m.activityIngestLagCount),
		ActivityIngestLagTotalNs: atomic.LoadInt64(&m.activityIngestLagTotalNs),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) incLabel(counts map[string]uint64, label string, n uint64) {
	m.mu.Lock()
	counts[label] += n
	m.mu.Unlock()
}

// ObserveHTTPRequest counts a request by status.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
	m.mu.Lock()
	m.httpByStatus[status]++
	m.mu.Unlock()
}

// IncSessionCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncSessionCacheHit() {
	atomic.AddUint64(&m.sessionCacheHits, 1)
}

// IncSessionCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncSessionCacheMiss() {
	atomic.AddUint64(&m.sessionCacheMisses, 1)
}

// AddMessagesAppended adds to the appended message counter.
func (m *InMemoryRecorder) AddMessagesAppended(n int) {
	if n > 0 {
		atomic.AddUint64(&m.messagesAppended, uint64(n))
	}
}

// IncLoopDecision counts an approval decision.
func (m *InMemoryRecorder) IncLoopDecision(decision string) {
	m.incLabel(m.loopDecisions, decision, 1)
}

// IncLoopReset increments the loop reset counter.
func (m *InMemoryRecorder) IncLoopReset() {
	atomic.AddUint64(&m.loopResets, 1)
}

// ObserveMCPProbe counts a probe by result.
func (m *InMemoryRecorder) ObserveMCPProbe(result string, duration time.Duration) {
	m.incLabel(m.mcpProbes, result, 1)
}

// IncActivityEventPublished counts a publish attempt by status.
func (m *InMemoryRecorder) IncActivityEventPublished(status string) {
	m.incLabel(m.activityPublish, status, 1)
}

// IncActivityEventProcessed counts a processed event by status.
func (m *InMemoryRecorder) IncActivityEventProcessed(status string) {
	m.incLabel(m.activityProcess, status, 1)
}

// ObserveActivityBatchSize counts a processed batch.
func (m *InMemoryRecorder) ObserveActivityBatchSize(size int) {
	atomic.AddUint64(&m.activityBatchCount, 1)
}

// ObserveActivityBatchDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveActivityBatchDuration(duration time.Duration) {}

// SetActivityQueueDepth records the stream backlog.
func (m *InMemoryRecorder) SetActivityQueueDepth(depth int64) {
	atomic.StoreInt64(&m.activityQueueDepth, depth)
}

// ObserveActivityIngestLag records the delay between publish and insert.
func (m *InMemoryRecorder) ObserveActivityIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.activityIngestLagCount, 1)
	atomic.AddInt64(&m.activityIngestLagTotalNs, lag.Nanoseconds())
}
