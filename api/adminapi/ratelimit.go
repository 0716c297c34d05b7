package adminapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles owner-mutate requests per client (the bearer token's
// subject when present, else X-Forwarded-For, else the remote address), grounded
// on the teacher gateway's token-bucket-per-visitor pattern.
type RateLimiter struct {
	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter allowing ratePerSecond sustained
// requests with the given burst, per client.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{ratePerSecond: ratePerSecond, burst: burst, visitors: make(map[string]*rate.Limiter)}
}

// Middleware rejects requests once a client exceeds its allotted rate.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.obtain(clientID(req)).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtain(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.ratePerSecond), r.burst)
		r.visitors[id] = limiter
		go r.expire(id)
	}
	return limiter
}

func (r *RateLimiter) expire(id string) {
	<-time.After(10 * time.Minute)
	r.mu.Lock()
	delete(r.visitors, id)
	r.mu.Unlock()
}

func clientID(r *http.Request) string {
	if sub := Subject(r.Context()); sub != "" {
		return "sub:" + sub
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
