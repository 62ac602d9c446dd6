package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter()
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newTestLimiter()
	p := Policy{Name: "login", Limit: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow(p, "key"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, wait := rl.Allow(p, "key")
	if ok {
		t.Error("6th request should be denied")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want %v", wait, time.Minute)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, clock := newTestLimiter()
	p := Policy{Name: "login", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < 3; i++ {
		rl.Allow(p, "key")
	}
	clock.advance(4 * time.Second)
	ok, wait := rl.Allow(p, "key")
	if ok {
		t.Error("should be blocked within window")
	}
	if wait != 6*time.Second {
		t.Errorf("wait = %v, want 6s", wait)
	}

	clock.advance(6 * time.Second)
	if ok, _ := rl.Allow(p, "key"); !ok {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterPoliciesAreSeparate(t *testing.T) {
	rl, _ := newTestLimiter()
	login := Policy{Name: "login", Limit: 1, Window: time.Minute}
	register := Policy{Name: "register", Limit: 1, Window: time.Minute}

	rl.Allow(login, "203.0.113.9")
	if ok, _ := rl.Allow(register, "203.0.113.9"); !ok {
		t.Error("register budget consumed by login")
	}
	if ok, _ := rl.Allow(login, "198.51.100.4"); !ok {
		t.Error("another client blocked by a different key")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter()
	short := Policy{Name: "short", Limit: 5, Window: 10 * time.Second}
	long := Policy{Name: "long", Limit: 5, Window: time.Minute}

	rl.Allow(short, "expired")
	rl.Allow(long, "active")
	clock.advance(15 * time.Second)

	if n := rl.Cleanup(); n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, ok := rl.buckets["short|expired"]; ok {
		t.Error("expired bucket should have been cleaned up")
	}
	if _, ok := rl.buckets["long|active"]; !ok {
		t.Error("active bucket should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, clock := newTestLimiter()
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, Policy{Name: "test", Limit: 2, Window: time.Minute}, keyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	clock.advance(30*time.Second + 500*time.Millisecond)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want %q", got, "30")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}, "10.0.0.2:1234", "198.51.100.4"},
		{"single forwarded", map[string]string{"X-Forwarded-For": " 198.51.100.5 "}, "10.0.0.2:1234", "198.51.100.5"},
		{"remote addr", nil, "192.0.2.7:5678", "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/auth/login", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := RealIP(req); got != tt.want {
				t.Errorf("RealIP = %q, want %q", got, tt.want)
			}
		})
	}
}
