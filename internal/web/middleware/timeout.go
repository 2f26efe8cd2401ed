package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline bounds every request context by timeout. Store calls observe the
// context, so a request that outlives it fails instead of running on. It does
// not interrupt the handler goroutine. A zero timeout disables the
// middleware.
func Deadline(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
