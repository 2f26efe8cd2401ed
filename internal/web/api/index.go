package api

import (
	"net/http"

	"github.com/conduit-lang/datarest/internal/rest/links"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/web/response"
)

// href is one entry of a _links object
type href struct {
	Href string `json:"href"`
}

type indexBody struct {
	Links map[string]href `json:"_links"`
}

// methodSet lists the methods exposed on one resource shape
type methodSet struct {
	Methods []string `json:"methods"`
}

type searchBody struct {
	Path string `json:"path"`
	Rel  string `json:"rel"`
}

// profileBody describes one resource type
type profileBody struct {
	Resource       string          `json:"resource"`
	IDType         string          `json:"idType"`
	CollectionRel  string          `json:"collectionRel"`
	ItemRel        string          `json:"itemRel"`
	Collection     methodSet       `json:"collection"`
	Item           methodSet       `json:"item"`
	PutForCreation bool            `json:"putForCreation"`
	Search         *searchBody     `json:"search,omitempty"`
	Links          map[string]href `json:"_links"`
}

// index lists every collection by its relation name
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	assembler := h.dispatcher.Links()

	body := indexBody{Links: map[string]href{
		links.RelSelf:    {Href: assembler.Root()},
		links.RelProfile: {Href: assembler.BaseURL + assembler.BasePath + "/profile"},
	}}
	for _, res := range h.registry.All() {
		body.Links[res.Metadata.CollectionRel] = href{Href: assembler.CollectionHref(res.Metadata)}
	}
	response.JSON(w, http.StatusOK, body)
}

// profiles lists the profile document of every collection
func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	assembler := h.dispatcher.Links()

	body := indexBody{Links: map[string]href{
		links.RelSelf: {Href: assembler.BaseURL + assembler.BasePath + "/profile"},
	}}
	for _, res := range h.registry.All() {
		body.Links[res.Metadata.CollectionRel] = href{Href: assembler.ProfileHref(res.Metadata)}
	}
	response.JSON(w, http.StatusOK, body)
}

// profile describes the methods and identity of one resource type
func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolve(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	meta := res.Metadata
	assembler := h.dispatcher.Links()
	body := profileBody{
		Resource:       meta.Path,
		IDType:         string(meta.IDType),
		CollectionRel:  meta.CollectionRel,
		ItemRel:        meta.ItemRel,
		Collection:     methodSet{Methods: meta.SupportedMethods(mapping.Collection).Sorted()},
		Item:           methodSet{Methods: meta.SupportedMethods(mapping.Item).Sorted()},
		PutForCreation: meta.PutForCreation,
		Links: map[string]href{
			links.RelSelf:      {Href: assembler.ProfileHref(meta)},
			meta.CollectionRel: {Href: assembler.CollectionHref(meta)},
		},
	}
	if meta.Search.Exported {
		body.Search = &searchBody{Path: meta.Search.Path, Rel: meta.Search.Rel}
	}
	response.JSON(w, http.StatusOK, body)
}
