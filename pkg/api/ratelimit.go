package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robodash/robodash/pkg/config"
	"golang.org/x/time/rate"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitEntryTTL      = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiters tracks one token bucket per client IP. Stale clients
// are swept inline on access instead of by a background goroutine, so
// the middleware needs no lifecycle of its own.
type rateLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func newRateLimiters(requestsPerMinute int) *rateLimiters {
	return &rateLimiters{
		clients:   make(map[string]*clientLimiter, 64),
		rps:       rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     requestsPerMinute, // Allow burst up to the per-minute limit.
		lastSweep: time.Now(),
	}
}

func (rl *rateLimiters) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) >= rateLimitSweepInterval {
		rl.sweepLocked(now)
	}

	entry, ok := rl.clients[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = entry
	}

	entry.lastSeen = now

	return entry.limiter
}

// sweepLocked drops clients not seen within the TTL. Callers hold mu.
func (rl *rateLimiters) sweepLocked(now time.Time) {
	for ip, entry := range rl.clients {
		if now.Sub(entry.lastSeen) > rateLimitEntryTTL {
			delete(rl.clients, ip)
		}
	}

	rl.lastSweep = now
}

// rateLimitMiddleware returns a per-IP rate limiting middleware for
// the given tier configuration.
func (s *server) rateLimitMiddleware(
	tier config.RateLimitTier,
) func(http.Handler) http.Handler {
	limiters := newRateLimiters(tier.RequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.get(extractIP(r)).Allow() {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP returns the client's IP address from the request.
func extractIP(r *http.Request) string {
	// X-Forwarded-For carries the original client first when the server
	// sits behind a reverse proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
