package cache

import (
	"testing"
	"time"
)

func TestHashIP(t *testing.T) {
	t.Parallel()

	ips := []string{"192.168.1.1", "192.168.1.2", "127.0.0.1", "::1", "2001:db8::1", ""}
	seen := make(map[string]string, len(ips))

	for _, ip := range ips {
		h := hashIP(ip)
		if len(h) != 16 {
			t.Errorf("hashIP(%q) length = %d, want 16", ip, len(h))
		}
		if h != hashIP(ip) {
			t.Errorf("hashIP(%q) is not deterministic", ip)
		}
		if other, dup := seen[h]; dup {
			t.Errorf("hashIP(%q) collides with %q", ip, other)
		}
		seen[h] = ip
	}
}

func TestBucket_TTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		b    bucket
		want time.Duration
	}{
		{"user 300 rpm burst 30", bucket{rate: 5, burst: 30}, 7 * time.Second},
		{"auth 2 rps burst 10", bucket{rate: 2, burst: 10}, 6 * time.Second},
		{"zero rate", bucket{rate: 0, burst: 10}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.b.ttl(); got != tt.want {
				t.Errorf("ttl() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBucketResult(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := bucket{rate: 2, burst: 10}

	got := bucketResult(b, now, false, 400, 0)
	if got.Allowed {
		t.Error("expected denied result")
	}
	if got.RetryAfter != 400*time.Millisecond {
		t.Errorf("RetryAfter = %s, want 400ms", got.RetryAfter)
	}
	if !got.ResetAt.Equal(now.Add(5 * time.Second)) {
		t.Errorf("ResetAt = %s, want now+5s", got.ResetAt.Sub(now))
	}

	full := bucketResult(b, now, true, 0, 10)
	if !full.ResetAt.Equal(now) || full.Remaining != 10 {
		t.Errorf("full bucket result = %+v", full)
	}
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	opt, err := clientOptions("redis://:secret@cache:6379/2")
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if opt.PoolSize != defaultPoolSize || opt.MinIdleConns != defaultMinIdleConns {
		t.Errorf("pool = %d/%d, want %d/%d", opt.PoolSize, opt.MinIdleConns, defaultPoolSize, defaultMinIdleConns)
	}
	if opt.DB != 2 || opt.Password != "secret" || opt.ClientName != clientName {
		t.Errorf("unexpected options: db=%d name=%q", opt.DB, opt.ClientName)
	}

	custom, err := clientOptions("redis://cache:6379/0?pool_size=50")
	if err != nil {
		t.Fatalf("clientOptions: %v", err)
	}
	if custom.PoolSize != 50 {
		t.Errorf("PoolSize = %d, want URL override 50", custom.PoolSize)
	}

	if _, err := clientOptions("http://cache"); err == nil {
		t.Error("expected error for non-redis scheme")
	}
}

func TestSessionCacheTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining time.Duration
		want      time.Duration
	}{
		{"expired", -time.Minute, 0},
		{"sub-second", 500 * time.Millisecond, 0},
		{"short", 2 * time.Minute, 2 * time.Minute},
		{"at cap", maxSessionCacheTTL, maxSessionCacheTTL},
		{"long", 30 * 24 * time.Hour, maxSessionCacheTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SessionCacheTTL(tt.remaining); got != tt.want {
				t.Errorf("SessionCacheTTL(%s) = %s, want %s", tt.remaining, got, tt.want)
			}
		})
	}
}
