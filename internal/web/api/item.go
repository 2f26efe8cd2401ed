package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/dispatch"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/patch"
	"github.com/conduit-lang/datarest/internal/web/router"
)

// item serves /{repository}/{id}
func (h *Handler) item(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := router.PathID(r, ParamID, res.Metadata.IDType)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx := r.Context()
	ifMatch := r.Header.Get("If-Match")
	accept := r.Header.Get("Accept")

	var resp dispatch.Response
	switch r.Method {
	case http.MethodOptions:
		resp, err = h.dispatcher.Options(res, mapping.Item)

	case http.MethodHead:
		resp, err = h.dispatcher.HeadItem(ctx, res, id, r.Header)

	case http.MethodGet:
		resp, err = h.dispatcher.GetItem(ctx, res, id, r.Header)

	case http.MethodPut:
		if err = res.Metadata.Verify(r.Method, mapping.Item); err != nil {
			break
		}
		payload := res.New()
		if err = h.parser.Parse(w, r, payload); err == nil {
			resp, err = h.dispatcher.UpsertItem(ctx, res, id, payload, ifMatch, accept)
		}

	case http.MethodPatch:
		if err = res.Metadata.Verify(r.Method, mapping.Item); err != nil {
			break
		}
		var p patch.Patch
		if p, err = h.readPatch(w, r); err == nil {
			resp, err = h.dispatcher.PatchItem(ctx, res, id, p, ifMatch, accept)
		}

	case http.MethodDelete:
		resp, err = h.dispatcher.DeleteItem(ctx, res, id, ifMatch)

	default:
		err = unsupported(res, r.Method, mapping.Item)
	}

	h.write(w, r, resp, err)
}

func (h *Handler) readPatch(w http.ResponseWriter, r *http.Request) (patch.Patch, error) {
	body, err := h.parser.ReadBody(w, r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, rest.InvalidPayload(errors.New("request body is empty"))
	}
	return patch.ForContentType(r.Header.Get("Content-Type"), body)
}
