package event

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Policy controls what happens when a listener fails
type Policy int

const (
	// PolicyIsolate logs listener failures and never reports them
	PolicyIsolate Policy = iota
	// PolicyAbortOnBefore reports the first Before* failure so the caller
	// can abort the mutation. After* failures are only logged.
	PolicyAbortOnBefore
)

// String returns the string representation of Policy
func (p Policy) String() string {
	if p == PolicyAbortOnBefore {
		return "abort"
	}
	return "isolate"
}

// ParsePolicy parses "isolate" or "abort"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "isolate":
		return PolicyIsolate, nil
	case "abort":
		return PolicyAbortOnBefore, nil
	default:
		return PolicyIsolate, fmt.Errorf("unknown event policy %q", s)
	}
}

// Registry collects listeners at startup
type Registry struct {
	listeners map[Kind][]Listener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Kind][]Listener)}
}

// On appends a listener for one kind
func (r *Registry) On(kind Kind, l Listener) {
	r.listeners[kind] = append(r.listeners[kind], l)
}

// OnEach appends a listener for several kinds; no kinds means every kind
func (r *Registry) OnEach(l Listener, kinds ...Kind) {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	for _, k := range kinds {
		r.On(k, l)
	}
}

// Listeners returns the listeners for a kind in registration order
func (r *Registry) Listeners(kind Kind) []Listener {
	return r.listeners[kind]
}

// HasListeners reports whether any listener is registered for kind
func (r *Registry) HasListeners(kind Kind) bool {
	return len(r.listeners[kind]) > 0
}

// FailureObserver is told about every listener failure
type FailureObserver func(evt Event, listener string, err error)

// Bus publishes events synchronously to a snapshot of a registry
type Bus struct {
	listeners map[Kind][]Listener
	policy    Policy
	logger    *zap.Logger
	observer  FailureObserver
}

// Option configures a Bus
type Option func(*Bus)

// WithPolicy sets the failure policy
func WithPolicy(p Policy) Option {
	return func(b *Bus) { b.policy = p }
}

// WithLogger sets the logger for listener failures
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFailureObserver registers a callback for listener failures
func WithFailureObserver(o FailureObserver) Option {
	return func(b *Bus) { b.observer = o }
}

// NewBus snapshots the registry; later registrations are not seen
func NewBus(reg *Registry, opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[Kind][]Listener),
		logger:    zap.NewNop(),
	}
	if reg != nil {
		for k, ls := range reg.listeners {
			b.listeners[k] = append([]Listener(nil), ls...)
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Policy returns the failure policy
func (b *Bus) Policy() Policy {
	return b.policy
}

// Publish delivers evt to every listener of its kind in registration order.
// Each listener runs isolated: an error or panic is logged and later
// listeners still run. Under PolicyAbortOnBefore the first Before* failure
// is returned after all listeners ran.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b == nil {
		return nil
	}

	var first error
	for _, l := range b.listeners[evt.Kind] {
		if err := b.deliver(ctx, l, evt); err != nil && first == nil {
			first = err
		}
	}

	if first != nil && b.policy == PolicyAbortOnBefore && evt.Kind.IsBefore() {
		return first
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, l Listener, evt Event) (err error) {
	name := listenerName(l)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener %s panicked: %v", name, r)
		}
		if err != nil {
			b.logger.Error("lifecycle listener failed",
				zap.String("listener", name),
				zap.String("kind", evt.Kind.String()),
				zap.String("resource", evt.Resource),
				zap.String("id", evt.EntityID()),
				zap.Error(err),
			)
			if b.observer != nil {
				b.observer(evt, name, err)
			}
		}
	}()

	return l.OnEvent(ctx, evt)
}
