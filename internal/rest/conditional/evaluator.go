// Package conditional decides whether a conditional GET or HEAD can be
// answered with 304 Not Modified.
package conditional

import (
	"net/http"

	"github.com/conduit-lang/datarest/internal/rest/etag"
	"github.com/conduit-lang/datarest/internal/rest/headers"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Outcome is the result of evaluating request preconditions against an entity
type Outcome struct {
	// NotModified is true when the client representation is current
	NotModified bool

	// Headers carries ETag and Last-Modified; computed in both cases
	Headers headers.Set
}

// Status returns 304 for a not-modified outcome and 200 otherwise
func (o Outcome) Status() int {
	if o.NotModified {
		return http.StatusNotModified
	}
	return http.StatusOK
}

// Evaluator evaluates If-None-Match and If-Modified-Since
type Evaluator struct {
	preparer headers.Preparer
}

// NewEvaluator creates an Evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate compares request validators with the current entity.
// If-None-Match takes precedence: If-Modified-Since is consulted only when no
// well-formed If-None-Match was sent.
func (e *Evaluator) Evaluate(req http.Header, entity repository.Entity) Outcome {
	tags := etag.Parse(req.Get(headers.IfNoneMatch))
	current := etag.Of(entity)

	outcome := Outcome{Headers: e.preparer.Prepare(entity)}

	switch {
	case len(tags) > 0:
		outcome.NotModified = etag.MatchesAny(tags, current, true)
	default:
		outcome.NotModified = e.preparer.StillValid(entity, req)
	}
	return outcome
}
