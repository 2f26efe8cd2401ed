package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	webcontext "github.com/conduit-lang/datarest/internal/web/context"
)

// RequestIDHeader is the header carrying the request ID
const RequestIDHeader = "X-Request-ID"

// acceptedID bounds client-supplied request IDs
var acceptedID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID creates a middleware that adds a request ID to each request. A
// well-formed client ID is reused; otherwise a UUID is generated.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !acceptedID.MatchString(requestID) {
				requestID = uuid.NewString()
			}

			r = r.WithContext(webcontext.SetRequestID(r.Context(), requestID))
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)
		})
	}
}
