package headers

import (
	"net/http"
	"time"

	"github.com/conduit-lang/datarest/internal/rest/etag"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Header names used by the dispatcher
const (
	ETag            = "ETag"
	LastModified    = "Last-Modified"
	IfMatch         = "If-Match"
	IfNoneMatch     = "If-None-Match"
	IfModifiedSince = "If-Modified-Since"
	Location        = "Location"
	Link            = "Link"
	Allow           = "Allow"
	AcceptPatch     = "Accept-Patch"
)

// Preparer derives cache validator headers from entities
type Preparer struct{}

// Prepare returns ETag and Last-Modified for entity, each only when the
// entity provides it
func (Preparer) Prepare(entity repository.Entity) Set {
	s := Empty()
	if entity == nil {
		return s
	}

	if tag := etag.Of(entity); !tag.IsNone() {
		s = s.With(ETag, tag.String())
	}
	if lm := repository.LastModifiedOf(entity); !lm.IsZero() {
		s = s.With(LastModified, FormatTime(lm))
	}
	return s
}

// StillValid reports whether an If-Modified-Since request header shows the
// client holds a representation no older than entity. Comparison is at
// one-second granularity. A missing or unparsable header, or an entity
// without a modification time, is never valid.
func (Preparer) StillValid(entity repository.Entity, req http.Header) bool {
	raw := req.Get(IfModifiedSince)
	if raw == "" || entity == nil {
		return false
	}

	lm := repository.LastModifiedOf(entity)
	if lm.IsZero() {
		return false
	}

	since, err := http.ParseTime(raw)
	if err != nil {
		return false
	}
	return !lm.Truncate(time.Second).After(since)
}

// FormatTime formats t as an HTTP date
func FormatTime(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
