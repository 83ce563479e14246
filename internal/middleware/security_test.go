package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurity_Headers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		isDev    bool
		wantHSTS bool
	}{
		{"production", false, true},
		{"development", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := Security(SecurityConfig{IsDevelopment: tt.isDev})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user/profile", nil))

			for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control", "Referrer-Policy"} {
				if rec.Header().Get(name) == "" {
					t.Errorf("%s not set", name)
				}
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestSecurity_HandlerMayOverride(t *testing.T) {
	t.Parallel()

	mw := Security(DefaultSecurityConfig())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := rec.Header().Get("Cache-Control"); got != "public, max-age=60" {
			t.Fatalf("request %d: Cache-Control = %q", i, got)
		}
	}

	// The shared header set must not be mutated by an override.
	rec := httptest.NewRecorder()
	mw(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q after an override elsewhere, want no-store", got)
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		limit    int64
		body     string
		declared bool
		want     int
		envelope bool
	}{
		{"within limit", 64, `{"name":"demo"}`, true, http.StatusOK, false},
		{"declared too large", 4, `{"name":"demo"}`, true, http.StatusRequestEntityTooLarge, true},
		{"streamed too large", 4, `{"name":"demo"}`, false, http.StatusRequestEntityTooLarge, false},
		{"limit disabled", 0, strings.Repeat("x", 4096), true, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(tt.body))
			if !tt.declared {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			MaxBodySize(tt.limit)(echo).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if !tt.envelope {
				return
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Code != "PAYLOAD_TOO_LARGE" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
