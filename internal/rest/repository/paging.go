package repository

import (
	"strings"
)

// Direction is a sort direction
type Direction int

const (
	// Asc sorts in ascending order
	Asc Direction = iota
	// Desc sorts in descending order
	Desc
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// ParseDirection parses "asc" or "desc" case-insensitively
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc, true
	case "desc":
		return Desc, true
	default:
		return Asc, false
	}
}

// Order sorts by one property
type Order struct {
	Property  string
	Direction Direction
}

// Sort is an ordered list of sort orders. An empty Sort means unsorted.
type Sort []Order

// IsSorted reports whether any order is present
func (s Sort) IsSorted() bool {
	return len(s) > 0
}

// String renders the sort as prop,dir pairs
func (s Sort) String() string {
	parts := make([]string, 0, len(s))
	for _, o := range s {
		parts = append(parts, o.Property+","+o.Direction.String())
	}
	return strings.Join(parts, ";")
}

// Pageable requests one page of a collection
type Pageable struct {
	// Page is the zero-based page number
	Page int
	// Size is the page size
	Size int
	Sort Sort
}

// Offset returns the number of entities skipped before the page
func (p Pageable) Offset() int {
	return p.Page * p.Size
}

// Page is one page of entities
type Page struct {
	Content       []Entity
	Number        int
	Size          int
	TotalElements int64
}

// TotalPages returns the number of pages for the page size
func (p Page) TotalPages() int {
	if p.Size <= 0 {
		return 1
	}
	return int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
}

// Slice cuts a page out of a fully loaded, already sorted slice
func Slice(all []Entity, pageable Pageable) Page {
	page := Page{
		Number:        pageable.Page,
		Size:          pageable.Size,
		TotalElements: int64(len(all)),
		Content:       []Entity{},
	}

	start := pageable.Offset()
	if start < 0 || start >= len(all) || pageable.Size <= 0 {
		return page
	}
	end := len(all)
	if pageable.Size < end-start {
		end = start + pageable.Size
	}
	page.Content = all[start:end]
	return page
}
