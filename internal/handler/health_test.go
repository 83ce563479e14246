package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler("1.2.3")

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	response := decodeHealth(t, rec)
	if response.Status != "ok" || response.Version != "1.2.3" {
		t.Errorf("unexpected response: %+v", response)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		postgres   HealthChecker
		redis      HealthChecker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			postgres:   &mockHealthChecker{},
			redis:      &mockHealthChecker{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "database down",
			postgres:   &mockHealthChecker{err: errors.New("dial tcp postgres://user:secret@db: connection refused")},
			redis:      &mockHealthChecker{},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "unavailable", "redis": "ok"},
		},
		{
			name:       "not configured",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "not configured", "redis": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("dev").
				WithCheck("postgres", tt.postgres).
				WithCheck("redis", tt.redis)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Errorf("dependency error leaked: %s", rec.Body.String())
			}
			response := decodeHealth(t, rec)
			for name, want := range tt.wantChecks {
				if response.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, response.Checks[name], want)
				}
			}
		})
	}
}

type slowChecker struct {
	delay time.Duration
}

func (s slowChecker) Ping(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHealthHandler_ReadyzChecksConcurrently(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler("dev")
	for _, name := range []string{"a", "b", "c", "d"} {
		h.WithCheck(name, slowChecker{delay: 200 * time.Millisecond})
	}

	start := time.Now()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Fatalf("Readyz took %s, checks ran sequentially", elapsed)
	}
}

func TestHealthHandler_WithCheckReplaces(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler("dev").
		WithCheck("redis", &mockHealthChecker{err: errors.New("down")}).
		WithCheck("redis", &mockHealthChecker{})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeHealth(t, rec).Checks; len(got) != 1 || got["redis"] != "ok" {
		t.Fatalf("checks = %v, want redis ok only", got)
	}
}
