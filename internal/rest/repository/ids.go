package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IDType is the identifier type of a resource
type IDType string

const (
	// IDInt64 identifiers are positive integers assigned from a sequence
	IDInt64 IDType = "int64"
	// IDUUID identifiers are random UUIDs in canonical form
	IDUUID IDType = "uuid"
	// IDString identifiers are opaque strings
	IDString IDType = "string"
)

// Validate checks that t is a known identifier type
func (t IDType) Validate() error {
	switch t {
	case IDInt64, IDUUID, IDString:
		return nil
	default:
		return fmt.Errorf("unknown id type %q", string(t))
	}
}

// Parse converts a path segment into the canonical identifier value
func (t IDType) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty id")
	}

	switch t {
	case IDInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int64 id %q: %w", raw, err)
		}
		return n, nil
	case IDUUID:
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid id %q: %w", raw, err)
		}
		return u.String(), nil
	default:
		return raw, nil
	}
}

// Coerce converts a decoded identifier value (JSON numbers, strings) into the
// canonical identifier value. A nil input stays nil.
func (t IDType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case IDInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("id %d out of range", n)
			}
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("id %v is not an integer", n)
			}
			// 2^63 is exactly representable, MaxInt64 is not
			if n < math.MinInt64 || n >= 1<<63 {
				return nil, fmt.Errorf("id %v out of range", n)
			}
			return int64(n), nil
		case json.Number:
			return t.Parse(n.String())
		case string:
			return t.Parse(n)
		}
	case IDUUID:
		switch u := v.(type) {
		case uuid.UUID:
			return u.String(), nil
		case string:
			return t.Parse(u)
		}
	default:
		return FormatID(v), nil
	}

	return nil, fmt.Errorf("cannot use %T as %s id", v, t)
}

// FormatID renders an identifier as it appears in URIs and entity tags
func FormatID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
