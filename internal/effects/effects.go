// Package effects runs the side effects of a business transaction after it
// commits: audit appends and notifications. Failures are logged and
// swallowed; the transaction has already decided its outcome.
package effects

import (
	"context"
	"log/slog"

	"procurement/internal/actor"
	"procurement/internal/audit"
	"procurement/internal/notify"
	"procurement/models"
)

type Appender interface {
	Append(ctx context.Context, r audit.Record) (*models.AuditEntry, error)
}

// Batch collects effects inside a transaction closure. A closure may run
// more than once only if the store retries; always start from a fresh Batch.
type Batch struct {
	records []audit.Record
	notes   []notify.Notification
}

// Audit records that a stateful action was taken by a.
func (b *Batch) Audit(a actor.Actor, action, entityType string, entityID int64, details map[string]any) {
	b.records = append(b.records, audit.Record{
		ActorID:    a.ID,
		ActorRole:  string(a.Role),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	})
}

func (b *Batch) Notify(n notify.Notification) {
	b.notes = append(b.notes, n)
}

type Effects struct {
	audit  Appender
	sink   notify.Sink
	logger *slog.Logger
}

func New(a Appender, sink notify.Sink, logger *slog.Logger) *Effects {
	return &Effects{audit: a, sink: sink, logger: logger}
}

// Flush must be called only after the transaction that filled b committed.
func (e *Effects) Flush(ctx context.Context, b *Batch) {
	for _, r := range b.records {
		if _, err := e.audit.Append(ctx, r); err != nil {
			e.logger.ErrorContext(ctx, "audit append failed",
				"action", r.Action, "entity", r.EntityType, "entity_id", r.EntityID, "error", err)
		}
	}
	for _, n := range b.notes {
		if err := e.sink.Notify(ctx, n); err != nil {
			e.logger.ErrorContext(ctx, "notification failed",
				"type", n.Type, "user_id", n.UserID, "entity", n.EntityType, "entity_id", n.EntityID, "error", err)
		}
	}
}
