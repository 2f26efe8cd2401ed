// Package rest holds the error taxonomy shared by the resource dispatcher and
// its collaborators. Every error is detected before a mutating side effect
// and maps to exactly one HTTP status via StatusOf.
package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrResourceNotFound is returned for an unknown resource type, a missing
	// invoker, or a missing item.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrPreconditionFailed is returned when an If-Match precondition does not
	// hold for the current state of the item.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidCreationAttempt is returned for a PUT addressing a missing item
	// when the resource type does not allow PUT for creation. It is a
	// ErrResourceNotFound.
	ErrInvalidCreationAttempt = fmt.Errorf("put for creation not allowed: %w", ErrResourceNotFound)

	// ErrInvalidPayload is returned when a request body cannot be decoded or a
	// patch cannot be applied.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnsupportedMediaType is returned for a request body in a media type
	// the resource does not accept.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrListenerAborted is returned when a Before* lifecycle listener vetoes a
	// mutation under the abort failure policy.
	ErrListenerAborted = errors.New("mutation aborted by lifecycle listener")
)

// MethodNotSupportedError reports a verb the resource metadata does not
// declare for the addressed resource shape.
type MethodNotSupportedError struct {
	Method  string
	Shape   string
	Allowed []string
}

// Error implements the error interface
func (e *MethodNotSupportedError) Error() string {
	return fmt.Sprintf("method %s not supported on %s resource (allowed: %s)",
		e.Method, e.Shape, strings.Join(e.Allowed, ", "))
}

// NewMethodNotSupported creates a MethodNotSupportedError
func NewMethodNotSupported(method, shape string, allowed []string) *MethodNotSupportedError {
	return &MethodNotSupportedError{
		Method:  method,
		Shape:   shape,
		Allowed: allowed,
	}
}

// InvalidPayload wraps a decoding or patch error as ErrInvalidPayload
func InvalidPayload(err error) error {
	if err == nil {
		return ErrInvalidPayload
	}
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}

// StatusOf maps an error from the taxonomy to its HTTP status code. Errors
// outside the taxonomy are server errors.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var methodErr *MethodNotSupportedError
	switch {
	case errors.As(err, &methodErr):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrListenerAborted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
