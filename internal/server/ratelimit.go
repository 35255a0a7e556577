package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Idle clients are pruned so the visitor map cannot grow without bound.
const (
	visitorIdleTTL = 10 * time.Minute
	pruneInterval  = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter applies one token bucket per client IP. chi's RealIP middleware
// runs first, so RemoteAddr already holds the forwarded address.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time

	limit rate.Limit
	burst int
	log   zerolog.Logger
}

func newIPLimiter(perSecond float64, burst int, log zerolog.Logger) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		visitors:  make(map[string]*visitor),
		lastPrune: time.Now(),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		log:       log.With().Str("component", "rate_limiter").Logger(),
	}
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			l.log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, "rate limit exceeded", http.StatusTooManyRequests, l.log)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > pruneInterval {
		for addr, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, addr)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP rewrites RemoteAddr to a bare IP with no port.
		return r.RemoteAddr
	}
	return host
}
