// Package notify delivers user-facing notifications. Delivery is best effort:
// a failed notification never changes core state.
package notify

import (
	"context"
	"log/slog"
)

type Notification struct {
	UserID     int64    `json:"userId,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	EntityType string   `json:"entityType"`
	EntityID   int64    `json:"entityId"`
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink writes notifications to a structured logger. It stands in for
// the outbound delivery service.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, n Notification) error {
	s.Logger.InfoContext(ctx, "notification",
		"type", n.Type,
		"user_id", n.UserID,
		"roles", n.Roles,
		"title", n.Title,
		"entity", n.EntityType,
		"entity_id", n.EntityID,
	)
	return nil
}
