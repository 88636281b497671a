package http

import (
	"testing"
	"time"
)

func newClockedLimiter(rps float64, burst int, opts ...RateLimiterOption) (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(rps, burst, opts...)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	l, _ := newClockedLimiter(1, 2)

	for i := range 2 {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want within (0, 1s]", wait)
	}

	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("other clients keep their own bucket")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	l, now := newClockedLimiter(1, 1)

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("second request should be rejected")
	}

	*now = now.Add(time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiter_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	l, now := newClockedLimiter(1, 1)

	l.Allow("a")
	for range 5 {
		l.Allow("a")
	}

	*now = now.Add(time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("rejections must not push the next token further out")
	}
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	l, now := newClockedLimiter(1, 1, WithIdleTTL(time.Minute))

	l.Allow("idle")
	*now = now.Add(30 * time.Second)
	l.Allow("busy")
	*now = now.Add(45 * time.Second)

	l.Cleanup()

	if _, ok := l.entries["idle"]; ok {
		t.Error("idle client should be dropped")
	}
	if _, ok := l.entries["busy"]; !ok {
		t.Error("recent client should be kept")
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"192.168.1.10:52311", "192.168.1.10"},
		{"[::1]:8080", "::1"},
		{"192.168.1.10", "192.168.1.10"},
		{"  ", "unknown"},
	}
	for _, tt := range tests {
		if got := clientKey(tt.addr); got != tt.want {
			t.Errorf("clientKey(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
