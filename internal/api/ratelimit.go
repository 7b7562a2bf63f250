package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/isdelr/keeper-notes-be/internal/api/handlers"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

const (
	tooManyRequestsMessage = "too many requests"
	visitorIdleTimeout     = 10 * time.Minute
	visitorSweepInterval   = time.Minute
	maxVisitors            = 10000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP. The table holds at
// most capacity clients; idle ones are swept every visitorSweepInterval.
type ipRateLimiter struct {
	sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	capacity  int
	lastSweep time.Time
	now       func() time.Time
}

// newIPRateLimiter allows perMinute requests per IP with the given burst.
// A non-positive perMinute disables limiting.
func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		capacity: maxVisitors,
		now:      time.Now,
	}
}

// Allow takes one token from ip's bucket. Unknown clients are refused while
// the table is full.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.Lock()
	defer l.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= visitorSweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= l.capacity {
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than visitorIdleTimeout. Callers hold
// the lock.
func (l *ipRateLimiter) sweep(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTimeout {
			delete(l.visitors, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			hlog.FromRequest(r).Warn().Str("ip", ip).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			handlers.WriteError(w, http.StatusTooManyRequests, tooManyRequestsMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP has
// already rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
