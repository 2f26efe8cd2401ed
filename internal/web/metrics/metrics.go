// Package metrics exposes Prometheus metrics for requests and lifecycle
// events on a private registry
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conduit-lang/datarest/internal/rest/event"
	webcontext "github.com/conduit-lang/datarest/internal/web/context"
	"github.com/conduit-lang/datarest/internal/web/middleware"
)

const namespace = "datarest"

// Metrics holds the collectors of one server
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Events           *prometheus.CounterVec
	ListenerFailures *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"resource", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource", "method"},
		),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of lifecycle events published",
			},
			[]string{"resource", "kind"},
		),

		ListenerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "listener_failures_total",
				Help:      "Total number of lifecycle listener failures",
			},
			[]string{"listener", "kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.RequestDuration,
		m.Events,
		m.ListenerFailures,
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and duration. The resource label is
// taken from the name the handler resolved, or "none".
func (m *Metrics) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, holder := webcontext.EnsureResourceHolder(r.Context())
			rw := middleware.NewResponseWriter(w)

			next.ServeHTTP(rw, r.WithContext(ctx))

			resource := holder.Name
			if resource == "" {
				resource = "none"
			}
			m.Requests.WithLabelValues(resource, r.Method, strconv.Itoa(rw.Status())).Inc()
			m.RequestDuration.WithLabelValues(resource, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// OnEvent implements event.Listener by counting every event
func (m *Metrics) OnEvent(_ context.Context, evt event.Event) error {
	m.Events.WithLabelValues(evt.Resource, evt.Kind.String()).Inc()
	return nil
}

// Name implements event.Named
func (m *Metrics) Name() string {
	return "metrics"
}

// ObserveFailure is an event.FailureObserver counting listener failures
func (m *Metrics) ObserveFailure(evt event.Event, listener string, _ error) {
	m.ListenerFailures.WithLabelValues(listener, evt.Kind.String()).Inc()
}
