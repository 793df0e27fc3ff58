package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long an address may go unseen before its limiter is dropped.
const idleAfter = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// GlobalLimiter is a per-IP token bucket applied to every request. Reads cost
// one token and writes cost three.
type GlobalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	burst    int
	now      func() time.Time
}

// NewGlobalLimiter creates a per-IP limiter: r tokens/second, burst up to burst tokens.
func NewGlobalLimiter(r rate.Limit, burst int) *GlobalLimiter {
	return &GlobalLimiter{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		burst:    burst,
		now:      time.Now,
	}
}

func (gl *GlobalLimiter) allow(ip string, cost int) bool {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	now := gl.now()
	v, ok := gl.limiters[ip]
	if !ok {
		v = &ipLimiter{limiter: rate.NewLimiter(gl.r, gl.burst)}
		gl.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, cost)
}

// Prune removes addresses idle for longer than idleAfter. It satisfies
// ratelimit.Pruner so the limiter janitor can sweep it.
func (gl *GlobalLimiter) Prune(now time.Time) int {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	n := 0
	for ip, v := range gl.limiters {
		if now.Sub(v.lastSeen) > idleAfter {
			delete(gl.limiters, ip)
			n++
		}
	}
	return n
}

// Limit is the middleware handler that enforces the limit per client IP.
func (gl *GlobalLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r.Context())
		if ip == "" {
			ip = remoteHost(r)
		}
		if !gl.allow(ip, requestCost(r.Method)) {
			writeMessage(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestCost(method string) int {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return 1
	}
	return 3
}
