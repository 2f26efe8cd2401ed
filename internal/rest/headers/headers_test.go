package headers

import (
	"net/http"
	"testing"
	"time"

	"github.com/conduit-lang/datarest/internal/rest/repository"
	"github.com/stretchr/testify/assert"
)

func TestSetIsImmutable(t *testing.T) {
	base := Empty().With("ETag", `"1-v1"`)
	derived := base.With("ETag", `"1-v2"`).Add("Link", "<a>")

	assert.Equal(t, `"1-v1"`, base.Get("ETag"))
	assert.Empty(t, base.Get("Link"))
	assert.Equal(t, `"1-v2"`, derived.Get("ETag"))
	assert.Equal(t, 2, derived.Len())

	h := derived.Header()
	h.Set("ETag", "mutated")
	assert.Equal(t, `"1-v2"`, derived.Get("ETag"))
}

func TestSetFromCopies(t *testing.T) {
	src := http.Header{}
	src.Set("Allow", "GET")
	s := From(src)
	src.Set("Allow", "POST")
	assert.Equal(t, "GET", s.Get("Allow"))
}

func TestSetWithEmptyRemoves(t *testing.T) {
	s := Empty().With("Location", "/a").With("Location", "")
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, s, s.Add("Link", ""))
}

func TestSetMerge(t *testing.T) {
	a := Empty().With("ETag", `"a"`).With("Allow", "GET")
	b := Empty().With("ETag", `"b"`).Add("Link", "<x>").Add("Link", "<y>")

	merged := a.Merge(b)
	assert.Equal(t, `"b"`, merged.Get("ETag"))
	assert.Equal(t, "GET", merged.Get("Allow"))
	assert.Equal(t, []string{"<x>", "<y>"}, merged.Values("Link"))
	assert.Equal(t, `"a"`, a.Get("ETag"))
	assert.True(t, a.Merge(Empty()).Equal(a))
}

func TestSetWriteToAndEqual(t *testing.T) {
	s := Empty().With("ETag", `"1-v1"`)
	w := http.Header{}
	s.WriteTo(w)
	assert.Equal(t, `"1-v1"`, w.Get("ETag"))

	assert.True(t, s.Equal(From(w)))
	assert.False(t, s.Equal(Empty()))
	assert.False(t, s.Equal(Empty().With("ETag", `"1-v2"`)))
}

type doc struct {
	id any
	repository.Audit
}

func (d *doc) EntityID() any      { return d.id }
func (d *doc) SetEntityID(id any) { d.id = id }

func TestPrepare(t *testing.T) {
	modified := time.Date(2026, 4, 5, 6, 7, 8, 900, time.UTC)
	e := &doc{id: int64(1), Audit: repository.Audit{Version: 3, LastModified: modified}}

	s := Preparer{}.Prepare(e)
	assert.Equal(t, `"1-v3"`, s.Get(ETag))
	assert.Equal(t, "Sun, 05 Apr 2026 06:07:08 GMT", s.Get(LastModified))

	unstamped := Preparer{}.Prepare(&doc{id: int64(1)})
	assert.Equal(t, `"1-v0"`, unstamped.Get(ETag))
	assert.Empty(t, unstamped.Get(LastModified))

	assert.Equal(t, 0, Preparer{}.Prepare(nil).Len())
}

func TestStillValid(t *testing.T) {
	modified := time.Date(2026, 4, 5, 6, 7, 8, 500000000, time.UTC)
	e := &doc{id: int64(1), Audit: repository.Audit{Version: 1, LastModified: modified}}

	tests := []struct {
		name     string
		header   string
		expected bool
	}{
		{"absent", "", false},
		{"same second", "Sun, 05 Apr 2026 06:07:08 GMT", true},
		{"later", "Sun, 05 Apr 2026 07:00:00 GMT", true},
		{"earlier", "Sun, 05 Apr 2026 06:07:07 GMT", false},
		{"unparsable", "yesterday", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := http.Header{}
			if tt.header != "" {
				req.Set(IfModifiedSince, tt.header)
			}
			assert.Equal(t, tt.expected, Preparer{}.StillValid(e, req))
		})
	}

	req := http.Header{}
	req.Set(IfModifiedSince, "Sun, 05 Apr 2026 07:00:00 GMT")
	assert.False(t, Preparer{}.StillValid(&doc{id: int64(1)}, req))
}
