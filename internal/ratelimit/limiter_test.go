package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	return New(&Config{MaxPerWindow: max, Window: window, Clock: clock}), clock
}

func TestLimiterAllowsWithinWindow(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if res := limiter.Check("10.0.0.1"); !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	res := limiter.Check("10.0.0.1")
	if res.Allowed {
		t.Fatal("fourth request should be limited")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", res.RetryAfter)
	}

	// Another client has its own budget.
	if res := limiter.Check("10.0.0.2"); !res.Allowed {
		t.Fatal("other clients are not affected")
	}
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	limiter, clock := newTestLimiter(1, time.Minute)

	if res := limiter.Check("10.0.0.1"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res := limiter.Check("10.0.0.1"); res.Allowed {
		t.Fatal("second request should be limited")
	}

	clock.advance(time.Minute)
	if res := limiter.Check("10.0.0.1"); !res.Allowed {
		t.Fatal("window should reset")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4312"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("expected 10.0.0.9, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("expected the first forwarded hop, got %q", got)
	}
}
