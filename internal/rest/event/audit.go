package event

import (
	"context"

	"go.uber.org/zap"
)

// AuditLogger writes every lifecycle event to a zap logger
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an AuditLogger
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

// Name implements Named
func (a *AuditLogger) Name() string {
	return "audit"
}

// OnEvent implements Listener
func (a *AuditLogger) OnEvent(_ context.Context, evt Event) error {
	a.logger.Info("entity lifecycle",
		zap.String("kind", evt.Kind.String()),
		zap.String("resource", evt.Resource),
		zap.String("id", evt.EntityID()),
		zap.Time("at", evt.Time),
	)
	return nil
}
