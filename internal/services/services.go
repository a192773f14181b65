// Package services holds the use cases behind the HTTP API and the
// workers: taxonomy and record CRUD, carryover evaluation, summaries and
// sessions. Every operation is scoped to one user id.
package services

import (
	"context"
	"log/slog"

	"kharcha/internal/amqp"
	"kharcha/internal/metrics"
)

// EventPublisher announces record changes. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.RecordEvent) error
}

// Invalidator drops cached views belonging to one user.
type Invalidator interface {
	Invalidate(userID string)
}

type notifier struct {
	publisher EventPublisher
	cache     Invalidator
	metrics   *metrics.Metrics
}

// changed invalidates the user's cached views and publishes ev. A failed
// publish never fails the write that triggered it.
func (n notifier) changed(ctx context.Context, userID string, ev *amqp.RecordEvent) {
	if n.cache != nil {
		n.cache.Invalidate(userID)
	}
	if ev == nil {
		return
	}
	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping record event",
			"record_id", ev.RecordID)
		return
	}
	err := n.publisher.Publish(ctx, ev)
	n.metrics.ObservePublish(string(ev.Kind), string(ev.Type), err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish record event",
			"record_id", ev.RecordID,
			"record_kind", ev.Kind,
			"event", ev.Type,
			"error", err)
	}
}
