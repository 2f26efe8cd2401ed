// Package etag derives entity tags from entity identity and version and
// parses the entity-tag lists of If-Match and If-None-Match.
package etag

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// ETag is an entity tag. The zero value is None.
type ETag struct {
	value    string
	weak     bool
	wildcard bool
}

var (
	// None is the absent tag; it matches nothing
	None = ETag{}

	// Any is the "*" list member
	Any = ETag{wildcard: true}
)

// New creates a strong tag from an opaque value
func New(value string) ETag {
	return ETag{value: value}
}

// Weak creates a weak tag from an opaque value
func Weak(value string) ETag {
	return ETag{value: value, weak: true}
}

// IsNone reports whether e is the absent tag
func (e ETag) IsNone() bool {
	return e == None
}

// IsWeak reports whether e carries the W/ prefix
func (e ETag) IsWeak() bool {
	return e.weak
}

// IsAny reports whether e is the "*" wildcard
func (e ETag) IsAny() bool {
	return e.wildcard
}

// Value returns the opaque tag value without quotes
func (e ETag) Value() string {
	return e.value
}

// String renders the header form; None renders empty
func (e ETag) String() string {
	switch {
	case e.wildcard:
		return "*"
	case e.IsNone():
		return ""
	case e.weak:
		return `W/"` + e.value + `"`
	default:
		return `"` + e.value + `"`
	}
}

// StrongMatch compares two tags with the strong comparison function
func (e ETag) StrongMatch(other ETag) bool {
	if e.IsNone() || other.IsNone() || e.wildcard || other.wildcard {
		return false
	}
	return !e.weak && !other.weak && e.value == other.value
}

// WeakMatch compares two tags with the weak comparison function
func (e ETag) WeakMatch(other ETag) bool {
	if e.IsNone() || other.IsNone() || e.wildcard || other.wildcard {
		return false
	}
	return e.value == other.value
}

// Of derives the tag of an entity: identity plus version for versioned
// entities, identity plus modification time for auditable ones, None
// otherwise. Entities without identity have no tag.
func Of(entity repository.Entity) ETag {
	if entity == nil || entity.EntityID() == nil {
		return None
	}
	id := repository.FormatID(entity.EntityID())

	if v, ok := entity.(repository.Versioned); ok {
		return New(fmt.Sprintf("%s-v%d", id, v.EntityVersion()))
	}
	if a, ok := entity.(repository.Auditable); ok {
		if lm := a.EntityLastModified(); !lm.IsZero() {
			return New(fmt.Sprintf("%s-m%d", id, lm.UnixNano()))
		}
	}
	return None
}

// Parse parses an If-Match or If-None-Match header value. A malformed value
// yields an empty list.
func Parse(header string) []ETag {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []ETag{Any}
	}

	var tags []ETag
	for i := 0; i < len(header); {
		for i < len(header) && (header[i] == ' ' || header[i] == '\t' || header[i] == ',') {
			i++
		}
		if i >= len(header) {
			break
		}

		weak := false
		if strings.HasPrefix(header[i:], "W/") {
			weak = true
			i += 2
		}

		if i >= len(header) || header[i] != '"' {
			return nil
		}
		end := strings.IndexByte(header[i+1:], '"')
		if end < 0 {
			return nil
		}
		value := header[i+1 : i+1+end]
		i += end + 2

		if i < len(header) && header[i] != ',' && header[i] != ' ' && header[i] != '\t' {
			return nil
		}
		tags = append(tags, ETag{value: value, weak: weak})
	}
	return tags
}

// FromHeader returns the first tag of a header value, or None
func FromHeader(header string) ETag {
	tags := Parse(header)
	if len(tags) == 0 {
		return None
	}
	return tags[0]
}

// MatchesAny reports whether current matches a member of tags. The wildcard
// matches any present tag. weak selects the comparison function.
func MatchesAny(tags []ETag, current ETag, weak bool) bool {
	for _, t := range tags {
		if t.wildcard {
			if !current.IsNone() {
				return true
			}
			continue
		}
		if weak && t.WeakMatch(current) {
			return true
		}
		if !weak && t.StrongMatch(current) {
			return true
		}
	}
	return false
}

// VerifyIfMatch checks an If-Match header against the current state of an
// existing entity. An absent or malformed header passes; "*" passes for any
// existing entity; otherwise a listed tag must strongly match.
func VerifyIfMatch(header string, entity repository.Entity) error {
	tags := Parse(header)
	if len(tags) == 0 {
		return nil
	}
	if entity == nil {
		return rest.ErrPreconditionFailed
	}

	for _, t := range tags {
		if t.wildcard {
			return nil
		}
	}

	if MatchesAny(tags, Of(entity), false) {
		return nil
	}
	return fmt.Errorf("if-match %s does not match %s: %w", header, Of(entity), rest.ErrPreconditionFailed)
}
