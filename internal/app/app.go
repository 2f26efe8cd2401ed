// Package app assembles a datarest server from its configuration
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/config"
	"github.com/conduit-lang/datarest/internal/rest/dispatch"
	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/links"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/repository"
	"github.com/conduit-lang/datarest/internal/store/memory"
	"github.com/conduit-lang/datarest/internal/store/sqlstore"
	"github.com/conduit-lang/datarest/internal/web/api"
	"github.com/conduit-lang/datarest/internal/web/cache"
	"github.com/conduit-lang/datarest/internal/web/metrics"
	"github.com/conduit-lang/datarest/internal/web/middleware"
	"github.com/conduit-lang/datarest/internal/web/query"
	"github.com/conduit-lang/datarest/internal/web/ratelimit"
	"github.com/conduit-lang/datarest/internal/web/response"
	"github.com/conduit-lang/datarest/internal/web/router"
	"github.com/conduit-lang/datarest/internal/web/server"
	"github.com/conduit-lang/datarest/internal/web/websocket"
)

// Paths of the operational endpoints
const (
	EventsPath  = "/events"
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
)

// App is a fully wired server
type App struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	registry   *mapping.Registry
	dispatcher *dispatch.Dispatcher
	router     *router.Router

	db      *sqlstore.DB
	cache   cache.Cache
	limiter ratelimit.Limiter
	hub     *websocket.Hub

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// New builds the application. Background work (the feed hub) runs until ctx
// is done or Close is called.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		config:   cfg,
		logger:   logger,
		metrics:  metrics.New(),
		registry: mapping.NewRegistry(),
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.registerResources(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.openLimiter(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	bus, err := a.eventBus()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if a.hub != nil {
		go a.hub.Run(ctx)
		a.closers = append(a.closers, closer{name: "feed", fn: func(context.Context) error {
			a.hub.Shutdown()
			return nil
		}})
	}

	a.dispatcher = dispatch.New(
		dispatch.Config{
			ReturnBodyOnCreate: cfg.REST.ReturnBodyOnCreate,
			ReturnBodyOnUpdate: cfg.REST.ReturnBodyOnUpdate,
		},
		bus,
		links.NewAssembler(cfg.Server.PublicURL, cfg.Server.BasePath),
		dispatch.WithLogger(logger.Named("dispatch")),
	)
	a.router = a.buildRouter()
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.config.Storage.Driver {
	case config.StorageSQLite, config.StoragePostgres:
		db, err := sqlstore.Open(ctx, a.config.Storage.Driver, a.config.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, closer{name: "database", fn: func(context.Context) error {
			return db.Close()
		}})
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}
	}
	return nil
}

func (a *App) registerResources(ctx context.Context) error {
	for _, rc := range a.config.Resources {
		meta, err := rc.Metadata()
		if err != nil {
			return fmt.Errorf("resource %s: %w", rc.Name, err)
		}

		factory := repository.DocumentFactory(meta.IDType)
		var invoker repository.Invoker
		if a.db != nil {
			store := a.db.Store(meta.Path, meta.IDType, factory)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate resource %s: %w", meta.Path, err)
			}
			invoker = store
		} else {
			invoker = memory.New(meta.IDType, factory)
		}

		if err := a.registry.Register(&mapping.Resource{Metadata: meta, Invoker: invoker, New: factory}); err != nil {
			return err
		}
		a.logger.Info("resource registered",
			zap.String("resource", meta.Path),
			zap.String("id_type", string(meta.IDType)),
			zap.String("storage", a.config.Storage.Driver),
		)
	}
	a.registry.Freeze()
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	cc := cache.DefaultConfig()
	if a.config.Cache.TTL > 0 {
		cc.DefaultTTL = a.config.Cache.TTL
	}

	switch a.config.Cache.Driver {
	case config.CacheMemory:
		a.cache = cache.NewMemoryCache(cc, cc.DefaultTTL)
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     a.config.Cache.Addr,
			Password: a.config.Cache.Password,
			DB:       a.config.Cache.DB,
			Config:   cc,
		})
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		a.cache = rc
	default:
		return nil
	}

	c := a.cache
	a.closers = append(a.closers, closer{name: "cache", fn: func(context.Context) error {
		return c.Close()
	}})
	return nil
}

// openLimiter shares the cache's Redis connection when there is one so every
// instance sees the same windows
func (a *App) openLimiter() error {
	rl := a.config.Server.RateLimit
	if rl.Requests <= 0 {
		return nil
	}

	if rc, ok := a.cache.(*cache.RedisCache); ok {
		limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Client: rc.Client(),
			Limit:  rl.Requests,
			Window: rl.Window,
		})
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		a.limiter = limiter
		return nil
	}

	bucket := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
		Capacity:        rl.Requests,
		Window:          rl.Window,
		CleanupInterval: rl.Window,
	})
	a.limiter = bucket
	a.closers = append(a.closers, closer{name: "rate limiter", fn: func(context.Context) error {
		return bucket.Close()
	}})
	return nil
}

func (a *App) eventBus() (*event.Bus, error) {
	policy, err := event.ParsePolicy(a.config.Events.Policy)
	if err != nil {
		return nil, err
	}

	reg := event.NewRegistry()
	reg.OnEach(a.metrics)
	if a.config.Events.Audit {
		reg.OnEach(event.NewAuditLogger(a.logger))
	}
	if a.cache != nil {
		invalidation := cache.NewInvalidationListener(a.cache, a.logger.Named("cache"))
		reg.OnEach(invalidation, invalidation.Kinds()...)
	}
	if a.config.Events.Feed {
		a.hub = websocket.NewHub(a.logger)
		feed := websocket.NewFeedListener(a.hub)
		reg.OnEach(feed, feed.Kinds()...)
	}

	return event.NewBus(reg,
		event.WithPolicy(policy),
		event.WithLogger(a.logger.Named("events")),
		event.WithFailureObserver(a.metrics.ObserveFailure),
	), nil
}

func (a *App) buildRouter() *router.Router {
	streaming := middleware.Or(middleware.PathEquals(EventsPath), middleware.PathEquals(MetricsPath))
	operational := middleware.Or(middleware.PathEquals(HealthPath), middleware.PathEquals(MetricsPath))

	r := router.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(a.logger),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    a.logger.Named("http"),
			SkipPaths: []string{HealthPath, MetricsPath},
		}),
		a.metrics.Middleware(),
		middleware.CORS(middleware.DefaultCORSConfig(a.config.Server.CORSOrigins...)),
	)
	if a.limiter != nil {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  a.limiter,
			Skip:     operational,
			FailOpen: a.config.Server.RateLimit.FailOpen,
			Logger:   a.logger.Named("ratelimit"),
		}))
	}
	r.Use(middleware.Conditional(middleware.Not(streaming), middleware.Deadline(a.config.Server.RequestTimeout)))

	r.Get(HealthPath, "healthz", a.health)
	r.Method(http.MethodGet, MetricsPath, "metrics", a.metrics.Handler())

	handler := api.NewHandler(a.registry, a.dispatcher, api.Config{
		BasePath: a.config.Server.BasePath,
		Limits: query.Limits{
			DefaultSize: a.config.REST.DefaultPageSize,
			MaxSize:     a.config.REST.MaxPageSize,
		},
		MaxBodySize: a.config.Server.MaxBodySize,
		Cache:       a.cache,
		CacheTTL:    a.config.Cache.TTL,
	}, a.logger)

	if a.hub != nil {
		r.Method(http.MethodGet, EventsPath, "events", websocket.NewHandler(a.hub, handler.Known))
	}
	handler.Register(r)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"resources": len(a.registry.All()),
	}
	if a.hub != nil {
		status["feed_clients"] = a.hub.ClientCount()
	}
	response.JSON(w, http.StatusOK, status)
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.router
}

// Routes lists the registered routes
func (a *App) Routes() []router.RouteInfo {
	return a.router.Routes()
}

// Registry returns the resource registry
func (a *App) Registry() *mapping.Registry {
	return a.registry
}

// Metrics returns the metrics collectors
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Run serves HTTP until ctx is done, then shuts down gracefully and
// releases every resource the app opened
func (a *App) Run(ctx context.Context) error {
	srv, err := server.New(&server.Config{
		Address:      a.config.Server.Address,
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: a.config.Server.ShutdownTimeout,
		Logger:  a.logger,
	})
	for _, c := range a.closers {
		gs.RegisterHook(c.name, c.fn)
	}
	a.closers = nil

	return gs.Run(ctx)
}

// Close releases every resource the app opened, in reverse order
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].fn(ctx); err != nil {
			a.logger.Error("close failed", zap.String("component", a.closers[i].name), zap.Error(err))
		}
	}
	a.closers = nil
}
