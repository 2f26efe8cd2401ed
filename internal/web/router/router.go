// Package router wraps chi with route introspection and JSON error handlers
package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/datarest/internal/web/middleware"
	"github.com/conduit-lang/datarest/internal/web/response"
)

// AnyMethod marks a route that accepts every method and dispatches on it
// itself
const AnyMethod = "*"

// Router manages HTTP routing using chi framework
type Router struct {
	mux    chi.Router
	prefix string
	routes *[]RouteInfo
}

// RouteInfo provides metadata about a route for introspection
type RouteInfo struct {
	Method     string
	Pattern    string
	Name       string
	Parameters []string
}

// NewRouter creates a Router whose unmatched paths and methods render JSON
// errors
func NewRouter() *Router {
	mux := chi.NewRouter()
	mux.NotFound(response.RenderNotFound)
	mux.MethodNotAllowed(response.RenderMethodNotAllowed)

	routes := make([]RouteInfo, 0)
	return &Router{mux: mux, routes: &routes}
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to the router. It must be called before routes are
// registered.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Get registers a GET route
func (r *Router) Get(pattern, name string, handler http.HandlerFunc) {
	r.Method(http.MethodGet, pattern, name, handler)
}

// Any registers a route for every method
func (r *Router) Any(pattern, name string, handler http.HandlerFunc) {
	r.Method(AnyMethod, pattern, name, handler)
}

// Method registers a route for one method, or AnyMethod
func (r *Router) Method(method, pattern, name string, handler http.Handler) {
	if method == AnyMethod {
		r.mux.Handle(pattern, handler)
	} else {
		r.mux.Method(method, pattern, handler)
	}

	*r.routes = append(*r.routes, RouteInfo{
		Method:     method,
		Pattern:    r.prefix + pattern,
		Name:       name,
		Parameters: extractParameters(pattern),
	})
}

// Group registers routes under a common prefix. Middleware added inside fn
// applies to those routes only.
func (r *Router) Group(prefix string, fn func(r *Router)) {
	r.mux.Route(prefix, func(sub chi.Router) {
		fn(&Router{mux: sub, prefix: r.prefix + prefix, routes: r.routes})
	})
}

// Routes returns all registered routes sorted by pattern
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(*r.routes))
	copy(out, *r.routes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

// Route returns the route registered under name
func (r *Router) Route(name string) (RouteInfo, bool) {
	for _, route := range *r.routes {
		if route.Name == name {
			return route, true
		}
	}
	return RouteInfo{}, false
}

// extractParameters extracts parameter names from a route pattern
func extractParameters(pattern string) []string {
	params := make([]string, 0)
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.Trim(part, "{}")
			if i := strings.IndexByte(name, ':'); i >= 0 {
				name = name[:i]
			}
			params = append(params, name)
		}
	}
	return params
}
