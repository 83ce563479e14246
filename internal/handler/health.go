package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthChecker is a dependency probed by Readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// readyTimeout bounds each dependency check of one readiness probe.
const readyTimeout = 2 * time.Second

// Check states reported by Readyz.
const (
	checkOK            = "ok"
	checkUnavailable   = "unavailable"
	checkNotConfigured = "not configured"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	version string
	started time.Time
	names   []string
	checks  map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler reporting version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version: version,
		started: time.Now(),
		checks:  make(map[string]HealthChecker),
	}
}

// WithCheck registers a dependency for Readyz. A nil checker is reported as
// "not configured" and does not fail the probe.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = checker
	return h
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Healthz reports that the process is serving.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.response(checkOK, nil))
}

// Readyz pings every registered dependency concurrently and answers 503 if
// any of them fails. Dependency errors are not echoed since they may carry
// connection strings.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.names))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range h.names {
		checker := h.checks[name]
		if checker == nil {
			results[name] = checkNotConfigured
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()

			state := checkOK
			if err := checker.Ping(ctx); err != nil {
				state = checkUnavailable
			}
			mu.Lock()
			results[name] = state
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, state := range results {
		if state == checkUnavailable {
			writeJSON(w, http.StatusServiceUnavailable, h.response("unhealthy", results))
			return
		}
	}
	writeJSON(w, http.StatusOK, h.response(checkOK, results))
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        checks,
	}
}
