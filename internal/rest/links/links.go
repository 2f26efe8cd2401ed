// Package links builds canonical resource URIs and RFC 8288 Link headers.
package links

import (
	"net/url"
	"strings"

	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Standard relation names
const (
	RelSelf    = "self"
	RelProfile = "profile"
)

// Link is a target URI and a relation name
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// String renders the link as a Link header member
func (l Link) String() string {
	return "<" + l.Href + `>;rel="` + l.Rel + `"`
}

// Links is an ordered list of links
type Links []Link

// String renders the list as one Link header value
func (ls Links) String() string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.String()
	}
	return strings.Join(parts, ",")
}

// Rel returns the first link with the given relation
func (ls Links) Rel(rel string) (Link, bool) {
	for _, l := range ls {
		if l.Rel == rel {
			return l, true
		}
	}
	return Link{}, false
}

// Assembler derives links from metadata and entity identity. BaseURL is an
// optional scheme and host prefix; BasePath is the mount point of the API.
type Assembler struct {
	BaseURL  string
	BasePath string
}

// NewAssembler creates an Assembler, normalising trailing slashes
func NewAssembler(baseURL, basePath string) Assembler {
	basePath = strings.TrimRight(basePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return Assembler{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		BasePath: basePath,
	}
}

// Root returns the URI of the API index
func (a Assembler) Root() string {
	root := a.BaseURL + a.BasePath
	if root == "" {
		return "/"
	}
	return root
}

// CollectionHref returns the URI of a collection
func (a Assembler) CollectionHref(meta *mapping.Metadata) string {
	return a.BaseURL + a.BasePath + "/" + meta.Path
}

// ItemHref returns the canonical URI of the item with the given id
func (a Assembler) ItemHref(meta *mapping.Metadata, id any) string {
	return Expand(a.CollectionHref(meta)+"/{id}", map[string]string{
		"id": repository.FormatID(id),
	})
}

// ProfileHref returns the URI of a collection's profile document
func (a Assembler) ProfileHref(meta *mapping.Metadata) string {
	return a.BaseURL + a.BasePath + "/profile/" + meta.Path
}

// SelfLink returns the self link of an entity
func (a Assembler) SelfLink(meta *mapping.Metadata, entity repository.Entity) Link {
	return Link{Href: a.ItemHref(meta, entity.EntityID()), Rel: RelSelf}
}

// ItemLinks returns the self link and the item relation link of an entity
func (a Assembler) ItemLinks(meta *mapping.Metadata, entity repository.Entity) Links {
	self := a.SelfLink(meta, entity)
	return Links{self, {Href: self.Href, Rel: meta.ItemRel}}
}

// Location returns the value of the Location header for an entity
func (a Assembler) Location(meta *mapping.Metadata, entity repository.Entity) string {
	return a.SelfLink(meta, entity).Href
}

// CollectionLinks returns the self, profile and, when exported, search links
// of a collection. An empty selfURI falls back to the canonical collection URI.
func (a Assembler) CollectionLinks(meta *mapping.Metadata, selfURI string) Links {
	if selfURI == "" {
		selfURI = a.CollectionHref(meta)
	}
	ls := Links{
		{Href: selfURI, Rel: RelSelf},
		{Href: a.ProfileHref(meta), Rel: RelProfile},
	}
	if meta.Search.Exported {
		ls = append(ls, Link{
			Href: a.CollectionHref(meta) + "/" + strings.Trim(meta.Search.Path, "/"),
			Rel:  meta.Search.Rel,
		})
	}
	return ls
}

// Expand replaces {name} path variables with escaped values and drops query
// templates such as {?page,size}. Unknown variables expand to nothing.
func Expand(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		b.WriteString(template[i : i+open])
		i += open

		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		expr := template[i+1 : i+end]
		i += end + 1

		if strings.HasPrefix(expr, "?") || strings.HasPrefix(expr, "&") {
			continue
		}
		b.WriteString(url.PathEscape(vars[expr]))
	}
	return b.String()
}
