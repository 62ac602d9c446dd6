package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Policy is a fixed-window budget. Name scopes the counters so routes that
// share a limiter do not share a budget.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// AuthPolicy guards the unauthenticated credential endpoints.
func AuthPolicy(name string) Policy {
	return Policy{Name: name, Limit: 10, Window: time.Minute}
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts requests per policy and key in memory.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow counts one request for key under p. When the budget is spent it
// returns false and the time left until the window resets.
func (rl *RateLimiter) Allow(p Policy, key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	id := p.Name + "|" + key
	b, ok := rl.buckets[id]
	if !ok || !now.Before(b.resetAt) {
		rl.buckets[id] = &bucket{count: 1, resetAt: now.Add(p.Window)}
		return true, 0
	}
	if b.count >= p.Limit {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// Cleanup drops buckets whose window has passed and reports how many it
// removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, b := range rl.buckets {
		if !now.Before(b.resetAt) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// RateLimit rejects requests over p's budget, keyed by keyFunc, with a 429
// JSON body and a Retry-After header in whole seconds.
func RateLimit(limiter *RateLimiter, p Policy, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Allow(p, keyFunc(r))
			if !ok {
				secs := int((wait + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
