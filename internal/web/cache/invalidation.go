package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/rest/event"
)

// InvalidationListener drops a resource's cached collection responses after
// every completed mutation of that resource
type InvalidationListener struct {
	cache  Cache
	logger *zap.Logger
}

// NewInvalidationListener creates an InvalidationListener
func NewInvalidationListener(c Cache, logger *zap.Logger) *InvalidationListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationListener{cache: c, logger: logger}
}

// Name implements event.Named
func (l *InvalidationListener) Name() string {
	return "cache-invalidation"
}

// Kinds returns the event kinds the listener must be registered for
func (l *InvalidationListener) Kinds() []event.Kind {
	kinds := make([]event.Kind, 0, len(event.Kinds))
	for _, k := range event.Kinds {
		if k.IsAfter() {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// OnEvent implements event.Listener
func (l *InvalidationListener) OnEvent(ctx context.Context, evt event.Event) error {
	if !evt.Kind.IsAfter() {
		return nil
	}
	err := NextGeneration(ctx, l.cache, evt.Resource)
	if err == nil {
		err = l.cache.DeletePrefix(ctx, Namespace(evt.Resource))
	}
	if err != nil {
		l.logger.Warn("cache invalidation failed",
			zap.String("resource", evt.Resource),
			zap.String("kind", evt.Kind.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
