// Package api exposes the resource dispatcher over HTTP
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/dispatch"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/web/cache"
	webcontext "github.com/conduit-lang/datarest/internal/web/context"
	"github.com/conduit-lang/datarest/internal/web/middleware"
	"github.com/conduit-lang/datarest/internal/web/query"
	"github.com/conduit-lang/datarest/internal/web/request"
	"github.com/conduit-lang/datarest/internal/web/response"
	"github.com/conduit-lang/datarest/internal/web/router"
)

// Path parameters of the resource routes
const (
	ParamRepository = "repository"
	ParamID         = "id"
)

// Config holds the transport options of the REST surface
type Config struct {
	// BasePath is the mount point, e.g. "/api"
	BasePath string

	Limits      query.Limits
	MaxBodySize int64

	// Cache enables the collection cache when set
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Handler serves every registered resource through one dispatcher
type Handler struct {
	registry   *mapping.Registry
	dispatcher *dispatch.Dispatcher
	parser     *request.Parser
	config     Config
	logger     *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(registry *mapping.Registry, dispatcher *dispatch.Dispatcher, config Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Limits.MaxSize <= 0 {
		config.Limits = query.DefaultLimits()
	}
	if config.BasePath == "" {
		config.BasePath = "/api"
	}

	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		parser:     request.NewParserWithMaxSize(config.MaxBodySize),
		config:     config,
		logger:     logger.Named("api"),
	}
}

// Register adds the resource routes under the base path
func (h *Handler) Register(r *router.Router) {
	collection := middleware.NewChain()
	if h.config.Cache != nil {
		collection = collection.Append(cache.Middleware(cache.MiddlewareConfig{
			Cache:    h.config.Cache,
			TTL:      h.config.CacheTTL,
			Resource: h.cachedResource,
			Logger:   h.logger,
		}))
	}

	r.Group(h.config.BasePath, func(r *router.Router) {
		r.Get("/", "index", h.index)
		r.Get("/profile", "profiles", h.profiles)
		r.Get("/profile/{"+ParamRepository+"}", "profile", h.profile)
		r.Method(router.AnyMethod, "/{"+ParamRepository+"}", "collection", collection.ThenFunc(h.collection))
		r.Any("/{"+ParamRepository+"}/{"+ParamID+"}", "item", h.item)
	})
}

// Known reports whether name is a registered resource
func (h *Handler) Known(name string) bool {
	_, err := h.registry.Lookup(name)
	return err == nil
}

func (h *Handler) cachedResource(r *http.Request) string {
	name := router.PathParam(r, ParamRepository)
	if !h.Known(name) {
		return ""
	}
	return name
}

// resolve looks up the addressed resource and records its name for the
// logging and metrics middleware
func (h *Handler) resolve(r *http.Request) (*mapping.Resource, error) {
	res, err := h.registry.Lookup(router.PathParam(r, ParamRepository))
	if err != nil {
		return nil, err
	}
	webcontext.SetResource(r.Context(), res.Name())
	return res, nil
}

func (h *Handler) selfURI(r *http.Request) string {
	return h.dispatcher.Links().BaseURL + r.URL.RequestURI()
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, resp dispatch.Response, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := response.Write(w, r, resp); err != nil {
		h.fail(w, r, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := rest.StatusOf(err); status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", webcontext.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	response.RenderError(w, r, err)
}
