// Package mapping resolves resource names to their immutable metadata and
// the invoker bound to them.
package mapping

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Shape distinguishes the collection resource from the item resource
type Shape int

const (
	// Collection is the /{repository} resource
	Collection Shape = iota
	// Item is the /{repository}/{id} resource
	Item
)

// String returns the string representation of Shape
func (s Shape) String() string {
	switch s {
	case Collection:
		return "collection"
	case Item:
		return "item"
	default:
		return "unknown"
	}
}

// Methods is a set of HTTP methods
type Methods map[string]struct{}

// NewMethods creates a method set; names are upper-cased
func NewMethods(methods ...string) Methods {
	m := make(Methods, len(methods))
	for _, method := range methods {
		m[strings.ToUpper(strings.TrimSpace(method))] = struct{}{}
	}
	return m
}

// Has reports whether method is in the set
func (m Methods) Has(method string) bool {
	_, ok := m[method]
	return ok
}

// Sorted returns the methods in a stable order
func (m Methods) Sorted() []string {
	out := make([]string, 0, len(m))
	for method := range m {
		out = append(out, method)
	}
	sort.Strings(out)
	return out
}

// DefaultCollectionMethods are exposed on a collection unless configured otherwise
func DefaultCollectionMethods() Methods {
	return NewMethods(http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost)
}

// DefaultItemMethods are exposed on an item unless configured otherwise
func DefaultItemMethods() Methods {
	return NewMethods(http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPut, http.MethodPatch, http.MethodDelete)
}

// SearchMapping describes the search resource of a collection
type SearchMapping struct {
	Exported bool
	Path     string
	Rel      string
}

// Metadata describes how one resource type is exposed. It is immutable once
// registered.
type Metadata struct {
	// Path is the URI segment of the collection, e.g. "widgets"
	Path string

	// CollectionRel and ItemRel name the link relations
	CollectionRel string
	ItemRel       string

	IDType repository.IDType

	CollectionMethods Methods
	ItemMethods       Methods

	// PutForCreation allows PUT on a missing item to create it
	PutForCreation bool

	Search SearchMapping
}

var pathSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Validate checks metadata and fills defaults
func (m *Metadata) Validate() error {
	if !pathSegment.MatchString(m.Path) {
		return fmt.Errorf("invalid resource path %q", m.Path)
	}
	if m.Path == "profile" {
		return fmt.Errorf("resource path %q is reserved", m.Path)
	}

	if m.IDType == "" {
		m.IDType = repository.IDInt64
	}
	if err := m.IDType.Validate(); err != nil {
		return fmt.Errorf("resource %s: %w", m.Path, err)
	}

	if m.CollectionRel == "" {
		m.CollectionRel = m.Path
	}
	if m.ItemRel == "" {
		m.ItemRel = strings.TrimSuffix(m.Path, "s")
	}
	if m.CollectionMethods == nil {
		m.CollectionMethods = DefaultCollectionMethods()
	}
	if m.ItemMethods == nil {
		m.ItemMethods = DefaultItemMethods()
	}
	if m.Search.Exported && m.Search.Path == "" {
		m.Search.Path = "search"
	}
	if m.Search.Exported && m.Search.Rel == "" {
		m.Search.Rel = "search"
	}
	return nil
}

// SupportedMethods returns the declared methods for a shape
func (m *Metadata) SupportedMethods(shape Shape) Methods {
	if shape == Item {
		return m.ItemMethods
	}
	return m.CollectionMethods
}

// Verify fails with *rest.MethodNotSupportedError when method is not
// declared for shape
func (m *Metadata) Verify(method string, shape Shape) error {
	supported := m.SupportedMethods(shape)
	if supported.Has(method) {
		return nil
	}
	return rest.NewMethodNotSupported(method, shape.String(), supported.Sorted())
}

// Resource is the resolved view of one resource type: metadata plus the
// invoker bound to it
type Resource struct {
	Metadata *Metadata

	// Invoker may be nil, in which case data operations report not found
	Invoker repository.Invoker

	// New creates an empty entity to decode payloads into
	New repository.Factory
}

// Name returns the resource path
func (r *Resource) Name() string {
	return r.Metadata.Path
}
