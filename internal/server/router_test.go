package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/cache"
	"github.com/agentdesk/agentdesk/internal/handler"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/middleware"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

type stubAuthService struct{}

func (stubAuthService) Register(context.Context, service.RegisterInput, service.ClientInfo) (*service.SessionResult, error) {
	return nil, service.ErrEmailTaken
}

func (stubAuthService) SignIn(context.Context, string, string, service.ClientInfo) (*service.SessionResult, error) {
	return nil, service.ErrInvalidCredentials
}

func (stubAuthService) SignOut(context.Context, string) error { return nil }

func (stubAuthService) Authenticate(_ context.Context, token string) (*model.AuthContext, error) {
	if token != "good" {
		return nil, service.ErrUnauthenticated
	}
	return &model.AuthContext{SessionID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (stubAuthService) CurrentSession(_ context.Context, ac *model.AuthContext) (*service.SessionInfo, error) {
	return &service.SessionInfo{User: &model.User{ID: ac.UserID, Email: "a@b.c"}, ExpiresAt: ac.ExpiresAt}, nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) CheckUserRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: false, RetryAfter: 2 * time.Second}, nil
}

func (denyAllLimiter) CheckIPRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: false, RetryAfter: 2 * time.Second}, nil
}

// keyLimiter admits everything and records the IP bucket keys it was asked about.
type keyLimiter struct {
	mu   sync.Mutex
	keys map[string]int
}

func (l *keyLimiter) CheckUserRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: true}, nil
}

func (l *keyLimiter) CheckIPRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[ip]++
	return &cache.RateLimitResult{Allowed: true}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(rl middleware.RateLimitConfig, recorder metrics.Recorder) http.Handler {
	logger := discardLogger()
	authSvc := stubAuthService{}
	cookie := handler.SessionCookie{Name: "agentdesk_session"}

	rl.Logger = logger
	return NewRouter(RouterConfig{
		Logger: logger,
		Handlers: Handlers{
			Root:          handler.New("test"),
			Health:        handler.NewHealthHandler("test"),
			Auth:          handler.NewAuthHandler(authSvc, cookie, logger),
			Users:         handler.NewUserHandler(nil, cookie, logger),
			Projects:      handler.NewProjectHandler(nil, logger),
			Conversations: handler.NewConversationHandler(nil, logger),
			MCP:           handler.NewMCPHandler(nil, logger),
		},
		Auth: middleware.AuthConfig{
			Logger:        logger,
			Authenticator: authSvc,
			CookieName:    cookie.Name,
		},
		RateLimit:      rl,
		Security:       middleware.SecurityConfig{IsDevelopment: true, MaxRequestBodySize: 1 << 10},
		CORS:           middleware.DefaultCORSConfig(),
		Metrics:        recorder,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestRouter_PublicRoutes(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{}, nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/does-not-exist", http.StatusNotFound},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{}, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/session"},
		{http.MethodGet, "/api/user/profile"},
		{http.MethodGet, "/api/user/projects"},
		{http.MethodDelete, "/api/user/profile"},
		{http.MethodPost, "/api/projects"},
		{http.MethodGet, "/api/projects/p1/conversations"},
		{http.MethodGet, "/api/projects/p1/conversations/c1/loop"},
		{http.MethodPost, "/api/projects/p1/mcp-configs/m1/probe"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(p.method, p.path, nil)
			req.Header.Set("Authorization", "Bearer bad")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != "UNAUTHORIZED" {
				t.Fatalf("code = %q, want UNAUTHORIZED", code)
			}
		})
	}
}

func TestRouter_SessionWithCookie(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "agentdesk_session", Value: "good"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"id":"u1"`) {
		t.Fatalf("body = %s, want user u1", rec.Body.String())
	}
}

func TestRouter_AuthRoutesRateLimitedByIP(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{
		Limiter:   denyAllLimiter{},
		IPEnabled: true,
		IPRPS:     1,
		IPBurst:   1,
	}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(`{}`)))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
	}

	// Probes are never rate limited.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestRouter_AuthBucketIgnoresForwardingHeaders(t *testing.T) {
	t.Parallel()

	limiter := &keyLimiter{keys: make(map[string]int)}
	r := testRouter(middleware.RateLimitConfig{
		Limiter:   limiter,
		IPEnabled: true,
		IPRPS:     1,
		IPBurst:   1,
	}, nil)

	for i := range 20 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:51000"
		req.Header.Set("X-Real-IP", "198.51.100."+strconv.Itoa(i))
		req.Header.Set("X-Forwarded-For", "192.0.2."+strconv.Itoa(i))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(limiter.keys) != 1 || limiter.keys["203.0.113.7"] != 20 {
		t.Fatalf("bucket keys = %v, want all 20 requests on 203.0.113.7", limiter.keys)
	}
}

func TestRouter_SignInErrorsPassThrough(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{}, nil)

	rec := httptest.NewRecorder()
	body := `{"email":"a@b.c","password":"wrong-password"}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %q, want INVALID_CREDENTIALS", code)
	}
}

func TestRouter_GlobalMiddleware(t *testing.T) {
	t.Parallel()

	recorder := metrics.NewInMemory()
	r := testRouter(middleware.RateLimitConfig{}, recorder)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	snap := recorder.Snapshot()
	if snap.HTTPRequests != 1 || snap.HTTPRequestsByStatus[http.StatusOK] != 1 {
		t.Fatalf("http requests = %d by status %v, want one 200", snap.HTTPRequests, snap.HTTPRequestsByStatus)
	}
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	r := testRouter(middleware.RateLimitConfig{}, nil)

	rec := httptest.NewRecorder()
	big := strings.NewReader(`{"email":"` + strings.Repeat("a", 2048) + `"}`)
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", big))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestRouter_TracingWrapsHandler(t *testing.T) {
	t.Parallel()

	logger := discardLogger()
	h := NewRouter(RouterConfig{
		Logger: logger,
		Handlers: Handlers{
			Root:   handler.New("test"),
			Health: handler.NewHealthHandler("test"),
			Auth:   handler.NewAuthHandler(stubAuthService{}, handler.SessionCookie{Name: "s"}, logger),
		},
		Auth:        middleware.AuthConfig{Logger: logger, Authenticator: stubAuthService{}},
		RateLimit:   middleware.RateLimitConfig{Logger: logger},
		Security:    middleware.DefaultSecurityConfig(),
		CORS:        middleware.DefaultCORSConfig(),
		TracingName: "agentdesk",
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
