package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/headers"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// ListCollection returns the collection, or one page of it when q.Page is set
func (d *Dispatcher) ListCollection(ctx context.Context, res *mapping.Resource, q Query) (Response, error) {
	inv, err := verify(res, http.MethodGet, mapping.Collection)
	if err != nil {
		return Response{}, err
	}

	h := headers.Empty().With(headers.Link, d.links.CollectionLinks(res.Metadata, q.SelfURI).String())

	if q.Page != nil {
		page, err := inv.FindPage(ctx, *q.Page)
		if err != nil {
			return Response{}, d.storeError(res, "find page", err)
		}
		return Response{Status: http.StatusOK, Headers: h, Body: page}, nil
	}

	entities, err := inv.FindAll(ctx, q.Sort)
	if err != nil {
		return Response{}, d.storeError(res, "find all", err)
	}
	if entities == nil {
		entities = []repository.Entity{}
	}
	return Response{Status: http.StatusOK, Headers: h, Body: entities}, nil
}

// HeadCollection answers HEAD on a collection with its links
func (d *Dispatcher) HeadCollection(_ context.Context, res *mapping.Resource, selfURI string) (Response, error) {
	if _, err := verify(res, http.MethodHead, mapping.Collection); err != nil {
		return Response{}, err
	}

	h := headers.Empty().With(headers.Link, d.links.CollectionLinks(res.Metadata, selfURI).String())
	return Response{Status: http.StatusNoContent, Headers: h}, nil
}

// CreateInCollection saves a new entity. Client-supplied identity is
// discarded; the store assigns one.
func (d *Dispatcher) CreateInCollection(ctx context.Context, res *mapping.Resource, payload repository.Entity, accept string) (Response, error) {
	inv, err := verify(res, http.MethodPost, mapping.Collection)
	if err != nil {
		return Response{}, err
	}

	payload.SetEntityID(nil)
	repository.StampIfSupported(payload, 0, time.Time{})
	return d.create(ctx, res, inv, payload, accept)
}

// create runs the create lifecycle shared by POST and PUT-for-creation
func (d *Dispatcher) create(ctx context.Context, res *mapping.Resource, inv repository.Invoker, payload repository.Entity, accept string) (Response, error) {
	if err := d.publish(ctx, event.BeforeCreate, res, payload); err != nil {
		return Response{}, err
	}

	saved, err := inv.Save(ctx, payload)
	if err != nil {
		return Response{}, d.storeError(res, "create", err)
	}

	_ = d.publish(ctx, event.AfterCreate, res, saved)

	h := d.preparer.Prepare(saved).
		With(headers.Location, d.links.Location(res.Metadata, saved))

	resp := Response{Status: http.StatusCreated, Headers: h}
	if wantsBody(d.config.ReturnBodyOnCreate, accept) {
		resp.Body = saved
	}
	return resp, nil
}
