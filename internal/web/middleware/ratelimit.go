package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/datarest/internal/web/context"
	"github.com/conduit-lang/datarest/internal/web/ratelimit"
	"github.com/conduit-lang/datarest/internal/web/response"
)

// RateLimitConfig holds configuration for the rate limit middleware
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// KeyFunc extracts the client key; defaults to ClientIP
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests
	Skip Predicate
	// FailOpen lets requests through when the limiter errors
	FailOpen bool
	Logger   *zap.Logger
}

// RateLimit rejects clients over their limit with 429 and Retry-After.
// Admitted responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func RateLimit(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIP
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Skip != nil && config.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := config.KeyFunc(r)
			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				config.Logger.Warn("rate limit check failed",
					zap.String("request_id", webcontext.GetRequestID(r.Context())),
					zap.String("key", key),
					zap.Bool("fail_open", config.FailOpen),
					zap.Error(err),
				)
				if config.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				response.RenderStatus(w, r, http.StatusServiceUnavailable, "")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				h.Set("Retry-After", strconv.FormatInt(info.RetryAfter(time.Now()), 10))
				response.RenderStatus(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For address, then
// X-Real-IP, then the connection's remote address
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
