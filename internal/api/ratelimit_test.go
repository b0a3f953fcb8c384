package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := NewRateLimiter()

	// Should allow up to the limit
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny at the limit
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	// Simulate window expiry by backdating the bucket
	rl.mu.Lock()
	rl.buckets["k1"].windowAt = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after window reset")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("expected key1 denied")
	}
	if !rl.Allow("key2", 2) {
		t.Fatal("expected key2 allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()

	rl.Allow("stale", 10)
	rl.Allow("fresh", 10)

	rl.mu.Lock()
	rl.buckets["stale"].windowAt = time.Now().Add(-5 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	rl.mu.Lock()
	_, hasStale := rl.buckets["stale"]
	_, hasFresh := rl.buckets["fresh"]
	rl.mu.Unlock()

	if hasStale {
		t.Fatal("expected stale entry to be cleaned up")
	}
	if !hasFresh {
		t.Fatal("expected fresh entry to remain")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("remote addr: %q", got)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := clientIP(req); got != "1.2.3.4" {
		t.Fatalf("forwarded: %q", got)
	}
}

func TestWithRateLimitIntegration(t *testing.T) {
	const limit = 3
	srv, _ := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.RateLimitState = limit
	})

	for i := 0; i < limit; i++ {
		w := doRequest(srv, "GET", "/v1/sync/state", "dev1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("state %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := doRequest(srv, "GET", "/v1/sync/state", "dev1", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if code := errorCode(t, w); code != ErrCodeRateLimited {
		t.Fatalf("code: %s", code)
	}

	// Limits are per device.
	w = doRequest(srv, "GET", "/v1/sync/state", "dev2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("other device: expected 200, got %d", w.Code)
	}

	// Other classes are unaffected.
	w = doRequest(srv, "GET", "/v1/sync/conflicts", "dev1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("conflicts: expected 200, got %d", w.Code)
	}

	if snap := srv.metrics.Snapshot(); snap.RateLimited != 1 {
		t.Fatalf("rate limited metric: %d", snap.RateLimited)
	}
}
