package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/cache"
)

// RateLimiter checks token buckets keyed by user or client IP.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures both limiters. Limiter errors fail open.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	// Fingerprint hashes client IPs in rejection logs.
	Fingerprint auth.Fingerprinter

	// Authenticated API routes, per user.
	UserEnabled bool
	UserRPM     int
	UserBurst   int

	// Auth routes, per client IP.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// bucketCheck resolves the bucket key for a request and consults it. An
// empty key skips limiting.
type bucketCheck struct {
	kind  string
	limit int
	key   func(r *http.Request) string
	// logKey is what the rejection log shows instead of the raw key.
	logKey func(key string) string
	check  func(ctx context.Context, key string) (*cache.RateLimitResult, error)
}

func (cfg RateLimitConfig) limit(enabled bool, b bucketCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := b.key(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := b.check(r.Context(), key)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("type", b.kind),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if b.limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(b.limit))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", b.kind),
					slog.String("key", b.logKey(key)),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.Duration("retry_after", res.RetryAfter),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, res.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUser limits authenticated requests per user. It must run after Auth.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limit(cfg.UserEnabled, bucketCheck{
		kind:   "user",
		limit:  cfg.UserRPM,
		key:    func(r *http.Request) string { return auth.UserID(r.Context()) },
		logKey: func(userID string) string { return userID },
		check: func(ctx context.Context, userID string) (*cache.RateLimitResult, error) {
			return cfg.Limiter.CheckUserRateLimit(ctx, userID, cfg.UserRPM, cfg.UserBurst)
		},
	})
}

// RateLimitIP limits requests per client IP. It guards sign-in and
// registration, where there is no user yet.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limit(cfg.IPEnabled, bucketCheck{
		kind:   "ip",
		key:    ClientIP,
		logKey: cfg.Fingerprint.Sum,
		check: func(ctx context.Context, ip string) (*cache.RateLimitResult, error) {
			return cfg.Limiter.CheckIPRateLimit(ctx, ip, cfg.IPRPS, cfg.IPBurst)
		},
	})
}

// writeRateLimitError writes a 429 with a whole-second Retry-After of at least 1.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Rate limit exceeded. Retry after "+strconv.Itoa(seconds)+" seconds.")
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are never
// read here; RealIP has already rewritten RemoteAddr for trusted proxies.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
