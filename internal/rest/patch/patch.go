// Package patch applies JSON merge patches and JSON patches to entities.
package patch

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Media types accepted for PATCH
const (
	MediaTypeMergePatch = "application/merge-patch+json"
	MediaTypeJSONPatch  = "application/json-patch+json"
	MediaTypeJSON       = "application/json"
)

// AcceptPatch is the Accept-Patch header value advertised on items
var AcceptPatch = strings.Join([]string{MediaTypeMergePatch, MediaTypeJSONPatch, MediaTypeJSON}, ", ")

// Patch is a partial modification of an entity
type Patch interface {
	// Apply returns a new entity created by fresh holding current with the
	// patch applied. Identity and version of current are preserved.
	Apply(current repository.Entity, fresh repository.Factory) (repository.Entity, error)
}

// MergePatch is an RFC 7386 merge patch
type MergePatch []byte

// Apply implements Patch
func (p MergePatch) Apply(current repository.Entity, fresh repository.Factory) (repository.Entity, error) {
	return apply(current, fresh, func(doc []byte) ([]byte, error) {
		return jsonpatch.MergePatch(doc, p)
	})
}

// JSONPatch is an RFC 6902 operation list
type JSONPatch struct {
	ops jsonpatch.Patch
}

// DecodeJSONPatch parses an operation list
func DecodeJSONPatch(body []byte) (*JSONPatch, error) {
	ops, err := jsonpatch.DecodePatch(body)
	if err != nil {
		return nil, rest.InvalidPayload(err)
	}
	return &JSONPatch{ops: ops}, nil
}

// Apply implements Patch
func (p *JSONPatch) Apply(current repository.Entity, fresh repository.Factory) (repository.Entity, error) {
	return apply(current, fresh, p.ops.Apply)
}

// ForContentType selects the patch kind from a Content-Type header. An empty
// content type is read as a merge patch.
func ForContentType(contentType string, body []byte) (Patch, error) {
	mediaType := ""
	if strings.TrimSpace(contentType) != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("content type %q: %w", contentType, rest.ErrUnsupportedMediaType)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "", MediaTypeMergePatch, MediaTypeJSON:
		if !json.Valid(body) {
			return nil, rest.InvalidPayload(fmt.Errorf("merge patch is not valid JSON"))
		}
		return MergePatch(body), nil
	case MediaTypeJSONPatch:
		return DecodeJSONPatch(body)
	default:
		return nil, fmt.Errorf("patch content type %q: %w", mediaType, rest.ErrUnsupportedMediaType)
	}
}

func apply(current repository.Entity, fresh repository.Factory, fn func([]byte) ([]byte, error)) (repository.Entity, error) {
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode current entity: %w", err)
	}

	patched, err := fn(doc)
	if err != nil {
		return nil, rest.InvalidPayload(err)
	}

	next := fresh()
	if err := json.Unmarshal(patched, next); err != nil {
		return nil, rest.InvalidPayload(err)
	}

	next.SetEntityID(current.EntityID())
	if version, ok := repository.VersionOf(current); ok {
		repository.StampIfSupported(next, version, repository.LastModifiedOf(current))
	}
	return next, nil
}
