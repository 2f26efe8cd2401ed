// Package context holds the request-scoped values shared by the HTTP layer
package context

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	resourceKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ResourceHolder records the resource name a request resolved to. It is
// placed in the context by outer middleware and filled in by the handler.
type ResourceHolder struct {
	Name string
}

// WithResourceHolder adds an empty holder to the context
func WithResourceHolder(ctx context.Context) (context.Context, *ResourceHolder) {
	h := &ResourceHolder{}
	return context.WithValue(ctx, resourceKey, h), h
}

// EnsureResourceHolder returns the holder already in the context, or adds
// a new one
func EnsureResourceHolder(ctx context.Context) (context.Context, *ResourceHolder) {
	if h, ok := ctx.Value(resourceKey).(*ResourceHolder); ok {
		return ctx, h
	}
	return WithResourceHolder(ctx)
}

// SetResource records the resource name if the context carries a holder
func SetResource(ctx context.Context, name string) {
	if h, ok := ctx.Value(resourceKey).(*ResourceHolder); ok {
		h.Name = name
	}
}

// GetResource returns the recorded resource name
func GetResource(ctx context.Context) string {
	if h, ok := ctx.Value(resourceKey).(*ResourceHolder); ok {
		return h.Name
	}
	return ""
}
