package middleware

import (
	"net/http"
	"strings"
)

// Predicate selects requests
type Predicate func(*http.Request) bool

// Conditional applies middleware only to requests matching predicate
func Conditional(predicate Predicate, middleware Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		wrapped := middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if predicate(r) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PathPrefix matches requests whose path starts with prefix
func PathPrefix(prefix string) Predicate {
	return func(r *http.Request) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

// PathEquals matches requests with an exact path
func PathEquals(path string) Predicate {
	return func(r *http.Request) bool {
		return r.URL.Path == path
	}
}

// Or matches when any predicate matches
func Or(predicates ...Predicate) Predicate {
	return func(r *http.Request) bool {
		for _, p := range predicates {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate
func Not(predicate Predicate) Predicate {
	return func(r *http.Request) bool {
		return !predicate(r)
	}
}
