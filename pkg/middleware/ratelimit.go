package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/flowrunner/taskrunner/internal/platform/response"
)

// KeyedLimiter is the subset of *ratelimit.Limiter this middleware
// depends on, kept narrow so it doesn't import the domain package.
type KeyedLimiter interface {
	Allow(key string) bool
}

// RateLimit wraps every request with limiter.Allow(clientKey(r)),
// responding 429 with the standard error envelope on denial. onDenied,
// if non-nil, is called with the key for metrics.
func RateLimit(limiter KeyedLimiter, onDenied func(key string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.Allow(key) {
				if onDenied != nil {
					onDenied(key)
				}
				response.Error(w, response.ErrRateLimited, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey extracts the rate-limit bucket key for r: the first
// X-Forwarded-For value (before the first comma, trimmed), falling
// back to the peer address, falling back to "unknown".
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
