package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/conduit-lang/datarest/internal/rest"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RenderError renders err with the status rest.StatusOf assigns to it.
// A 405 carries the Allow header; HEAD responses carry no body.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := rest.StatusOf(err)

	var methodErr *rest.MethodNotSupportedError
	if errors.As(err, &methodErr) {
		w.Header().Set("Allow", strings.Join(methodErr.Allowed, ", "))
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		// store and driver errors stay in the logs
		message = http.StatusText(status)
	}
	RenderStatus(w, r, status, message)
}

// RenderStatus renders an error body for a status code
func RenderStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}

	if r != nil && r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}

	writeJSON(w, status, &ErrorResponse{
		Error:   "error",
		Message: message,
		Code:    errorCodeFromStatus(status),
	})
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, r *http.Request) {
	RenderStatus(w, r, http.StatusNotFound, "Resource not found")
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	RenderStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusNotAcceptable:
		return "not_acceptable"
	case http.StatusConflict:
		return "conflict"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
