package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ipBucket is a token bucket refilled at a fixed per-minute rate.
type ipBucket struct {
	tokens   float64
	lastSeen time.Time
}

const bucketSweepEvery = time.Minute

// RateLimiter enforces a per-client-IP request budget. Zero or negative rpm
// disables limiting.
type RateLimiter struct {
	rpm       float64
	burst     float64
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:     float64(rpm),
		burst:   float64(rpm),
		buckets: make(map[string]*ipBucket),
		now:     time.Now,
	}
}

// sweep drops buckets idle long enough to have fully refilled; such entries
// behave exactly like fresh ones.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < bucketSweepEvery {
		return
	}
	rl.lastSweep = now

	idleCutoff := time.Duration(rl.burst / rl.rpm * float64(time.Minute))
	if idleCutoff < bucketSweepEvery {
		idleCutoff = bucketSweepEvery
	}
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= idleCutoff {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.rpm <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{tokens: rl.burst, lastSeen: now}
		rl.buckets[ip] = b
	}
	elapsed := now.Sub(b.lastSeen).Minutes()
	b.tokens += elapsed * rl.rpm
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded, try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
