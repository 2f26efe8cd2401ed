package query

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// propertyPattern matches sortable property names
var propertyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Limits bounds the page size a client may request
type Limits struct {
	DefaultSize int
	MaxSize     int
}

// DefaultLimits returns a page size of 20 capped at 1000
func DefaultLimits() Limits {
	return Limits{DefaultSize: 20, MaxSize: 1000}
}

// Params are the list parameters of a collection request
type Params struct {
	// Page is nil when the request asked for neither page nor size
	Page *repository.Pageable
	Sort repository.Sort
}

// Parse reads page, size and sort from the request query.
// Example: ?page=1&size=10&sort=name,desc&sort=size
// Malformed values are reported as rest.ErrInvalidPayload.
func Parse(r *http.Request, limits Limits) (Params, error) {
	sort, err := ParseSort(r)
	if err != nil {
		return Params{}, err
	}

	page, err := ParsePage(r, limits)
	if err != nil {
		return Params{}, err
	}
	if page != nil {
		page.Sort = sort
	}
	return Params{Page: page, Sort: sort}, nil
}

// ParsePage parses the page and size parameters. Returns nil if neither is
// present. Sizes above the limit are capped.
func ParsePage(r *http.Request, limits Limits) (*repository.Pageable, error) {
	values := r.URL.Query()
	rawPage, rawSize := values.Get("page"), values.Get("size")
	if rawPage == "" && rawSize == "" {
		return nil, nil
	}

	if limits.DefaultSize <= 0 {
		limits.DefaultSize = DefaultLimits().DefaultSize
	}

	page := 0
	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 0 {
			return nil, rest.InvalidPayload(fmt.Errorf("page must be a non-negative integer, got %q", rawPage))
		}
		page = n
	}

	size := limits.DefaultSize
	if rawSize != "" {
		n, err := strconv.Atoi(rawSize)
		if err != nil || n < 1 {
			return nil, rest.InvalidPayload(fmt.Errorf("size must be a positive integer, got %q", rawSize))
		}
		size = n
	}
	if limits.MaxSize > 0 && size > limits.MaxSize {
		size = limits.MaxSize
	}
	// the page must end within int range so its offset cannot wrap
	if page > math.MaxInt/size-1 {
		return nil, rest.InvalidPayload(fmt.Errorf("page %d is out of range for size %d", page, size))
	}

	return &repository.Pageable{Page: page, Size: size}, nil
}

// ParseSort parses the repeatable sort parameter. Each value lists one or
// more properties optionally followed by a direction that applies to all of
// them.
// Example: ?sort=name,desc&sort=size returns [name DESC, size ASC]
// Returns nil if the sort parameter is not present.
func ParseSort(r *http.Request) (repository.Sort, error) {
	var sort repository.Sort

	for _, value := range r.URL.Query()["sort"] {
		parts := make([]string, 0, 2)
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) == 0 {
			continue
		}

		dir := repository.Asc
		if d, ok := repository.ParseDirection(parts[len(parts)-1]); ok {
			dir = d
			parts = parts[:len(parts)-1]
		}

		for _, property := range parts {
			if !propertyPattern.MatchString(property) {
				return nil, rest.InvalidPayload(fmt.Errorf("invalid sort property %q", property))
			}
			sort = append(sort, repository.Order{Property: property, Direction: dir})
		}
	}

	return sort, nil
}
