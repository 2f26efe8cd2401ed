package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/conditional"
	"github.com/conduit-lang/datarest/internal/rest/etag"
	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/headers"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/patch"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// GetItem returns one entity, or 304 when the request validators show the
// client copy is current. Cache headers are identical in both cases.
func (d *Dispatcher) GetItem(ctx context.Context, res *mapping.Resource, id any, req http.Header) (Response, error) {
	entity, outcome, err := d.lookup(ctx, res, id, req)
	if err != nil {
		return Response{}, err
	}

	if outcome.NotModified {
		return Response{Status: http.StatusNotModified, Headers: outcome.Headers}, nil
	}
	return Response{Status: http.StatusOK, Headers: outcome.Headers, Body: entity}, nil
}

// HeadItem mirrors GetItem without a body: 304 when unmodified, else 204
func (d *Dispatcher) HeadItem(ctx context.Context, res *mapping.Resource, id any, req http.Header) (Response, error) {
	_, outcome, err := d.lookup(ctx, res, id, req)
	if err != nil {
		return Response{}, err
	}

	if outcome.NotModified {
		return Response{Status: http.StatusNotModified, Headers: outcome.Headers}, nil
	}
	return Response{Status: http.StatusNoContent, Headers: outcome.Headers}, nil
}

func (d *Dispatcher) lookup(ctx context.Context, res *mapping.Resource, id any, req http.Header) (repository.Entity, conditional.Outcome, error) {
	inv, err := verify(res, http.MethodGet, mapping.Item)
	if err != nil {
		return nil, conditional.Outcome{}, err
	}

	entity, err := d.find(ctx, res, inv, id)
	if err != nil {
		return nil, conditional.Outcome{}, err
	}

	outcome := d.evaluator.Evaluate(req, entity)
	outcome.Headers = outcome.Headers.With(headers.Link, d.links.ItemLinks(res.Metadata, entity).String())
	return entity, outcome, nil
}

// UpsertItem replaces the entity with the given id. A missing entity is
// created when the resource allows PUT for creation, using the requested id.
func (d *Dispatcher) UpsertItem(ctx context.Context, res *mapping.Resource, id any, payload repository.Entity, ifMatch, accept string) (Response, error) {
	inv, err := verify(res, http.MethodPut, mapping.Item)
	if err != nil {
		return Response{}, err
	}

	current, ok, err := inv.FindByID(ctx, id)
	if err != nil {
		return Response{}, d.storeError(res, "find", err)
	}

	if !ok {
		if !res.Metadata.PutForCreation {
			return Response{}, fmt.Errorf("%s/%s: %w", res.Name(), repository.FormatID(id), rest.ErrInvalidCreationAttempt)
		}
		if err := etag.VerifyIfMatch(ifMatch, nil); err != nil {
			return Response{}, err
		}
		payload.SetEntityID(id)
		repository.StampIfSupported(payload, 0, time.Time{})
		return d.create(ctx, res, inv, payload, accept)
	}

	if err := etag.VerifyIfMatch(ifMatch, current); err != nil {
		return Response{}, err
	}

	payload.SetEntityID(current.EntityID())
	if version, ok := repository.VersionOf(current); ok {
		repository.StampIfSupported(payload, version, repository.LastModifiedOf(current))
	}

	saved, err := d.save(ctx, res, inv, payload)
	if err != nil {
		return Response{}, err
	}

	h := d.preparer.Prepare(saved).
		With(headers.Location, d.links.Location(res.Metadata, saved))
	return d.updated(saved, h, accept), nil
}

// PatchItem applies a partial modification to an existing entity. It never
// creates.
func (d *Dispatcher) PatchItem(ctx context.Context, res *mapping.Resource, id any, p patch.Patch, ifMatch, accept string) (Response, error) {
	inv, err := verify(res, http.MethodPatch, mapping.Item)
	if err != nil {
		return Response{}, err
	}

	current, err := d.find(ctx, res, inv, id)
	if err != nil {
		return Response{}, err
	}

	if err := etag.VerifyIfMatch(ifMatch, current); err != nil {
		return Response{}, err
	}

	if res.New == nil {
		return Response{}, fmt.Errorf("resource %s has no entity factory", res.Name())
	}
	next, err := p.Apply(current, res.New)
	if err != nil {
		return Response{}, err
	}

	saved, err := d.save(ctx, res, inv, next)
	if err != nil {
		return Response{}, err
	}

	return d.updated(saved, d.preparer.Prepare(saved), accept), nil
}

// DeleteItem removes an existing entity by its own identifier
func (d *Dispatcher) DeleteItem(ctx context.Context, res *mapping.Resource, id any, ifMatch string) (Response, error) {
	inv, err := verify(res, http.MethodDelete, mapping.Item)
	if err != nil {
		return Response{}, err
	}

	current, err := d.find(ctx, res, inv, id)
	if err != nil {
		return Response{}, err
	}

	if err := etag.VerifyIfMatch(ifMatch, current); err != nil {
		return Response{}, err
	}

	if err := d.publish(ctx, event.BeforeDelete, res, current); err != nil {
		return Response{}, err
	}

	if err := inv.DeleteByID(ctx, current.EntityID()); err != nil {
		return Response{}, d.storeError(res, "delete", err)
	}

	_ = d.publish(ctx, event.AfterDelete, res, current)

	return Response{Status: http.StatusNoContent, Headers: headers.Empty()}, nil
}

// save runs the update lifecycle shared by PUT and PATCH
func (d *Dispatcher) save(ctx context.Context, res *mapping.Resource, inv repository.Invoker, entity repository.Entity) (repository.Entity, error) {
	if err := d.publish(ctx, event.BeforeSave, res, entity); err != nil {
		return nil, err
	}

	saved, err := inv.Save(ctx, entity)
	if err != nil {
		return nil, d.storeError(res, "save", err)
	}

	_ = d.publish(ctx, event.AfterSave, res, saved)
	return saved, nil
}

func (d *Dispatcher) updated(saved repository.Entity, h headers.Set, accept string) Response {
	if wantsBody(d.config.ReturnBodyOnUpdate, accept) {
		return Response{Status: http.StatusOK, Headers: h, Body: saved}
	}
	return Response{Status: http.StatusNoContent, Headers: h}
}
