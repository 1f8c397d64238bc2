package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/cache"
	"github.com/kiranshivaraju/fuzzjobs/internal/telemetry"
)

const defaultRequestsPerMinute = 30

// RateLimit provides fixed-window rate limiting per client IP via Redis.
type RateLimit struct {
	cache          cache.Cache
	scope          string
	requestsPerMin int
	now            func() time.Time
}

// NewRateLimit creates a limiter. scope separates the counters of
// independently limited route groups.
func NewRateLimit(c cache.Cache, scope string, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, scope: scope, requestsPerMin: requestsPerMin, now: time.Now}
}

// Limit rejects requests beyond the per-minute allowance of the client IP.
// Run it after chi's RealIP so proxies are accounted for.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cache.RateLimitKey(rl.scope + ":" + clientIP(r))
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, time.Minute)
		if err != nil {
			// On Redis error, allow the request (fail open)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(time.Minute).Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			telemetry.RateLimitRejects.Inc()
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
