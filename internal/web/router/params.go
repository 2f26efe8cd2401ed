package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// PathParam extracts a path parameter by name
func PathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// PathID extracts a path parameter and parses it as an identifier of the
// given type. An unparsable id addresses nothing and is reported as
// rest.ErrResourceNotFound.
func PathID(r *http.Request, name string, idType repository.IDType) (any, error) {
	raw := chi.URLParam(r, name)
	id, err := idType.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("id %q: %w", raw, rest.ErrResourceNotFound)
	}
	return id, nil
}
