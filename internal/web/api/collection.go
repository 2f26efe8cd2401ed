package api

import (
	"net/http"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/dispatch"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/web/query"
)

// collection serves /{repository}
func (h *Handler) collection(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()

	var resp dispatch.Response
	switch r.Method {
	case http.MethodOptions:
		resp, err = h.dispatcher.Options(res, mapping.Collection)

	case http.MethodHead:
		resp, err = h.dispatcher.HeadCollection(ctx, res, h.selfURI(r))

	case http.MethodGet:
		var params query.Params
		if params, err = query.Parse(r, h.config.Limits); err == nil {
			resp, err = h.dispatcher.ListCollection(ctx, res, dispatch.Query{
				Page:    params.Page,
				Sort:    params.Sort,
				SelfURI: h.selfURI(r),
			})
		}

	case http.MethodPost:
		if err = res.Metadata.Verify(r.Method, mapping.Collection); err != nil {
			break
		}
		payload := res.New()
		if err = h.parser.Parse(w, r, payload); err == nil {
			resp, err = h.dispatcher.CreateInCollection(ctx, res, payload, r.Header.Get("Accept"))
		}

	default:
		err = unsupported(res, r.Method, mapping.Collection)
	}

	h.write(w, r, resp, err)
}

// unsupported reports a method the transport has no operation for, even
// when the metadata lists it
func unsupported(res *mapping.Resource, method string, shape mapping.Shape) error {
	if err := res.Metadata.Verify(method, shape); err != nil {
		return err
	}
	allowed := make([]string, 0)
	for _, m := range res.Metadata.SupportedMethods(shape).Sorted() {
		if m != method {
			allowed = append(allowed, m)
		}
	}
	return rest.NewMethodNotSupported(method, shape.String(), allowed)
}
