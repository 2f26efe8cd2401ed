// Package dispatch implements the generic REST operations over any
// registered resource type.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/conditional"
	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/headers"
	"github.com/conduit-lang/datarest/internal/rest/links"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/patch"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Config holds the write response options. A nil flag means "return a body
// when the request carried an Accept header".
type Config struct {
	ReturnBodyOnCreate *bool
	ReturnBodyOnUpdate *bool
}

// Bool returns a pointer to b, for Config literals
func Bool(b bool) *bool {
	return &b
}

func wantsBody(flag *bool, accept string) bool {
	if flag != nil {
		return *flag
	}
	return strings.TrimSpace(accept) != ""
}

// Response is the outcome of one operation. Body is nil, an entity, a slice
// of entities or a repository.Page.
type Response struct {
	Status  int
	Headers headers.Set
	Body    any
}

// HasBody reports whether the response carries a representation
func (r Response) HasBody() bool {
	return r.Body != nil
}

// Query carries the list parameters of a collection request
type Query struct {
	// Page requests a single page; nil lists the whole collection
	Page *repository.Pageable

	// Sort orders an unpaged listing
	Sort repository.Sort

	// SelfURI is the request URI used as the collection self link
	SelfURI string
}

// Dispatcher executes REST operations. It is stateless and safe for
// concurrent use.
type Dispatcher struct {
	config    Config
	bus       *event.Bus
	links     links.Assembler
	evaluator *conditional.Evaluator
	preparer  headers.Preparer
	logger    *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher. A nil bus publishes nothing.
func New(cfg Config, bus *event.Bus, assembler links.Assembler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:    cfg,
		bus:       bus,
		links:     assembler,
		evaluator: conditional.NewEvaluator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Links returns the link assembler
func (d *Dispatcher) Links() links.Assembler {
	return d.links
}

func invokerOf(res *mapping.Resource) (repository.Invoker, error) {
	if res == nil || res.Metadata == nil {
		return nil, rest.ErrResourceNotFound
	}
	if res.Invoker == nil {
		return nil, fmt.Errorf("resource %s has no invoker: %w", res.Name(), rest.ErrResourceNotFound)
	}
	return res.Invoker, nil
}

// verify checks the method and resolves the invoker, before any store call
func verify(res *mapping.Resource, method string, shape mapping.Shape) (repository.Invoker, error) {
	if res == nil || res.Metadata == nil {
		return nil, rest.ErrResourceNotFound
	}
	if err := res.Metadata.Verify(method, shape); err != nil {
		return nil, err
	}
	return invokerOf(res)
}

func (d *Dispatcher) publish(ctx context.Context, kind event.Kind, res *mapping.Resource, entity repository.Entity) error {
	if err := d.bus.Publish(ctx, event.New(kind, res.Name(), entity)); err != nil {
		return fmt.Errorf("%s %s: %w: %w", kind, res.Name(), rest.ErrListenerAborted, err)
	}
	return nil
}

func (d *Dispatcher) storeError(res *mapping.Resource, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s %s: %w: %w", op, res.Name(), rest.ErrPreconditionFailed, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s %s: %w", op, res.Name(), rest.ErrResourceNotFound)
	default:
		d.logger.Error("store operation failed",
			zap.String("resource", res.Name()),
			zap.String("operation", op),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", op, res.Name(), err)
	}
}

func (d *Dispatcher) find(ctx context.Context, res *mapping.Resource, inv repository.Invoker, id any) (repository.Entity, error) {
	entity, ok, err := inv.FindByID(ctx, id)
	if err != nil {
		return nil, d.storeError(res, "find", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", res.Name(), repository.FormatID(id), rest.ErrResourceNotFound)
	}
	return entity, nil
}

// Options answers OPTIONS with the declared methods of a shape
func (d *Dispatcher) Options(res *mapping.Resource, shape mapping.Shape) (Response, error) {
	if res == nil || res.Metadata == nil {
		return Response{}, rest.ErrResourceNotFound
	}

	h := headers.Empty().With(headers.Allow, strings.Join(res.Metadata.SupportedMethods(shape).Sorted(), ", "))
	if shape == mapping.Item {
		h = h.With(headers.AcceptPatch, patch.AcceptPatch)
	}
	return Response{Status: http.StatusOK, Headers: h}, nil
}
