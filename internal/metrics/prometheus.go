package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through the default Prometheus registry.
type PrometheusRecorder struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sessionCache *prometheus.CounterVec

	messagesAppended prometheus.Counter
	loopDecisions    *prometheus.CounterVec
	loopResets       prometheus.Counter

	mcpProbes        *prometheus.CounterVec
	mcpProbeDuration *prometheus.HistogramVec

	activityPublished     *prometheus.CounterVec
	activityProcessed     *prometheus.CounterVec
	activityBatchSize     prometheus.Histogram
	activityBatchDuration prometheus.Histogram
	activityQueueDepth    prometheus.Gauge
	activityIngestLag     prometheus.Histogram
}

var (
	prometheusOnce   sync.Once
	sharedPrometheus *PrometheusRecorder
)

// NewPrometheus creates and registers all Prometheus metrics.
// Metrics are registered once per process; later calls return the same recorder.
func NewPrometheus() *PrometheusRecorder {
	prometheusOnce.Do(func() {
		sharedPrometheus = &PrometheusRecorder{
			httpRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "route", "status"},
			),
			httpRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentdesk_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
			sessionCache: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_session_cache_total",
					Help: "Session cache lookups by result",
				},
				[]string{"result"},
			),
			messagesAppended: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "agentdesk_messages_appended_total",
					Help: "Total number of chat messages appended to conversations",
				},
			),
			loopDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_loop_decisions_total",
					Help: "Agent loop approval decisions",
				},
				[]string{"decision"},
			),
			loopResets: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "agentdesk_loop_resets_total",
					Help: "Total number of agent loop resets",
				},
			),
			mcpProbes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_mcp_probes_total",
					Help: "MCP server probes by result",
				},
				[]string{"result"},
			),
			mcpProbeDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentdesk_mcp_probe_duration_seconds",
					Help:    "MCP probe duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 9), // 50ms to 12.8s
				},
				[]string{"result"},
			),
			activityPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_activity_events_published_total",
					Help: "Activity events published to the stream",
				},
				[]string{"status"},
			),
			activityProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentdesk_activity_events_processed_total",
					Help: "Activity events processed by the worker",
				},
				[]string{"status"},
			),
			activityBatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentdesk_activity_batch_size",
					Help:    "Number of events per worker batch",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
				},
			),
			activityBatchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentdesk_activity_batch_duration_seconds",
					Help:    "Time to persist a worker batch",
					Buckets: prometheus.DefBuckets,
				},
			),
			activityQueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentdesk_activity_queue_depth",
					Help: "Pending plus unread entries in the activity stream",
				},
			),
			activityIngestLag: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentdesk_activity_ingest_lag_seconds",
					Help:    "Delay between an activity occurring and being stored",
					Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
				},
			),
		}
	})
	return sharedPrometheus
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records request count and latency.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncSessionCacheHit increments cache hit counter.
func (p *PrometheusRecorder) IncSessionCacheHit() {
	p.sessionCache.WithLabelValues("hit").Inc()
}

// IncSessionCacheMiss increments cache miss counter.
func (p *PrometheusRecorder) IncSessionCacheMiss() {
	p.sessionCache.WithLabelValues("miss").Inc()
}

// AddMessagesAppended adds to the appended message counter.
func (p *PrometheusRecorder) AddMessagesAppended(n int) {
	if n > 0 {
		p.messagesAppended.Add(float64(n))
	}
}

// IncLoopDecision counts an approval decision.
func (p *PrometheusRecorder) IncLoopDecision(decision string) {
	p.loopDecisions.WithLabelValues(decision).Inc()
}

// IncLoopReset increments the loop reset counter.
func (p *PrometheusRecorder) IncLoopReset() {
	p.loopResets.Inc()
}

// ObserveMCPProbe records a probe outcome.
func (p *PrometheusRecorder) ObserveMCPProbe(result string, duration time.Duration) {
	p.mcpProbes.WithLabelValues(result).Inc()
	p.mcpProbeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncActivityEventPublished counts a publish attempt by status.
func (p *PrometheusRecorder) IncActivityEventPublished(status string) {
	p.activityPublished.WithLabelValues(status).Inc()
}

// IncActivityEventProcessed counts a processed event by status.
func (p *PrometheusRecorder) IncActivityEventProcessed(status string) {
	p.activityProcessed.WithLabelValues(status).Inc()
}

// ObserveActivityBatchSize records a batch size.
func (p *PrometheusRecorder) ObserveActivityBatchSize(size int) {
	p.activityBatchSize.Observe(float64(size))
}

// ObserveActivityBatchDuration records batch persistence time.
func (p *PrometheusRecorder) ObserveActivityBatchDuration(duration time.Duration) {
	p.activityBatchDuration.Observe(duration.Seconds())
}

// SetActivityQueueDepth records the stream backlog.
func (p *PrometheusRecorder) SetActivityQueueDepth(depth int64) {
	p.activityQueueDepth.Set(float64(depth))
}

// ObserveActivityIngestLag records the delay between publish and insert.
func (p *PrometheusRecorder) ObserveActivityIngestLag(lag time.Duration) {
	p.activityIngestLag.Observe(lag.Seconds())
}
