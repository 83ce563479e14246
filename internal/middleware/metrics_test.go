package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agentdesk/agentdesk/internal/metrics"
)

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	recorder := metrics.NewInMemory()

	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Get("/api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, path := range []string{"/api/projects/p1", "/api/projects/p2", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	snap := recorder.Snapshot()
	if snap.HTTPRequests != 3 {
		t.Errorf("requests = %d, want 3", snap.HTTPRequests)
	}
	if snap.HTTPRequestsByStatus[http.StatusNoContent] != 2 {
		t.Errorf("204 count = %d, want 2", snap.HTTPRequestsByStatus[http.StatusNoContent])
	}
	if snap.HTTPRequestsByStatus[http.StatusNotFound] != 1 {
		t.Errorf("404 count = %d, want 1", snap.HTTPRequestsByStatus[http.StatusNotFound])
	}
}

func TestRoutePattern_NoRouter(t *testing.T) {
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != unmatchedRoute {
		t.Errorf("routePattern() = %q, want %q", got, unmatchedRoute)
	}
}
