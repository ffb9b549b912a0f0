package shared

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// Effects emits the best-effort side effects of a committed mutation: the
// audit entry and the subscriber notification. Failures are logged and
// swallowed.
type Effects struct {
	Entity   string
	Audit    AuditRecorder
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Committed records action on entityID and broadcasts evt.
func (e Effects) Committed(ctx context.Context, actorID int64, action string, evt EventType, entityID int64, meta map[string]any) {
	id := strconv.FormatInt(entityID, 10)
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	if e.Audit != nil {
		if err := e.Audit.Record(ctx, AuditLog{ActorID: actorID, Action: action, Entity: e.Entity, EntityID: id, Meta: meta, At: now}); err != nil {
			e.logger().Warn("audit record failed", slog.String("entity", e.Entity), slog.String("action", action), slog.Any("error", err))
		}
	}
	if e.Notifier != nil && evt != "" {
		if err := e.Notifier.Notify(ctx, Event{Type: evt, EntityID: id, ActorID: actorID, Payload: meta, OccurredAt: now}); err != nil {
			e.logger().Warn("notify failed", slog.String("event", string(evt)), slog.String("entity_id", id), slog.Any("error", err))
		}
	}
}

func (e Effects) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
