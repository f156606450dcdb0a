package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lpstaking/observability"
)

// RateLimit configures the per-client token bucket.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

const visitorTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one limiter per client address.
type RateLimiter struct {
	cfg      RateLimit
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
	lastGC   time.Time
}

// NewRateLimiter returns nil when limiting is disabled.
func NewRateLimiter(cfg RateLimit) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{cfg: cfg, visitors: make(map[string]*visitor), now: time.Now}
}

// Middleware rejects requests above the configured rate with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientID(r)) {
			observability.ModuleMetrics().RecordThrottle("api", "rate_limit")
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > visitorTTL {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, key)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), l.cfg.Burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// clientID prefers the authenticated principal, then the remote address as
// rewritten by the RealIP middleware.
func clientID(r *http.Request) string {
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		return "principal:" + principal.Label
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
