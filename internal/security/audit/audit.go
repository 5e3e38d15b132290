package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// LogAction writes one audit line. The request id comes from the chi
// RequestID middleware when present.
func (al *Logger) LogAction(ctx context.Context, actorID, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("actor_id", actorID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogCreate(ctx context.Context, actorID, userID, status, details string) {
	al.LogAction(ctx, actorID, "create", "user", userID, status, details)
}

func (al *Logger) LogUpdate(ctx context.Context, actorID, userID, status, details string) {
	al.LogAction(ctx, actorID, "update", "user", userID, status, details)
}

func (al *Logger) LogDeletion(ctx context.Context, actorID, userID, status, details string) {
	al.LogAction(ctx, actorID, "delete", "user", userID, status, details)
}

func (al *Logger) LogLogin(ctx context.Context, userID, status, details string) {
	al.LogAction(ctx, userID, "login", "session", userID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, actorID, reason string) {
	al.LogAction(ctx, actorID, "access_denied", "api", "", "denied", reason)
}
