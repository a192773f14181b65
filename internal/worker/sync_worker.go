package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kharcha/internal/amqp"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/sheets"
)

// Consumer delivers record events until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.RecordEvent) error) error
}

// SyncWorker mirrors record events into a spreadsheet change log.
type SyncWorker struct {
	rows    sheets.RowWriter
	metrics *metrics.Metrics
}

func NewSyncWorker(rows sheets.RowWriter, m *metrics.Metrics) *SyncWorker {
	return &SyncWorker{rows: rows, metrics: m}
}

// HandleEvent appends one row for ev. A returned error requeues the message.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.RecordEvent) error {
	err := w.handle(ctx, ev)
	w.metrics.ObserveConsume(err)
	return err
}

func (w *SyncWorker) handle(ctx context.Context, ev *amqp.RecordEvent) error {
	if ev == nil {
		return amqp.ErrInvalidEvent
	}
	slog.InfoContext(ctx, "Processing record event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldRecordID, ev.RecordID,
		log.FieldRecordKind, string(ev.Kind),
		"event", string(ev.Type))

	ref, err := w.rows.Append(ctx, sheets.RowFromEvent(ev))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror record event",
			log.FieldComponent, log.ComponentWorker,
			log.FieldRecordID, ev.RecordID,
			log.FieldError, err)
		return fmt.Errorf("append row: %w", err)
	}

	slog.InfoContext(ctx, "Record event mirrored",
		log.FieldComponent, log.ComponentWorker,
		log.FieldRecordID, ev.RecordID,
		"row", ref)
	return nil
}

// Run consumes events until ctx is done. Cancellation is a clean stop.
func (w *SyncWorker) Run(ctx context.Context, c Consumer) error {
	slog.InfoContext(ctx, "Sync worker started", log.FieldComponent, log.ComponentWorker)
	err := c.Consume(ctx, w.HandleEvent)
	if err == nil || errors.Is(err, context.Canceled) {
		slog.InfoContext(ctx, "Sync worker stopped", log.FieldComponent, log.ComponentWorker)
		return nil
	}
	return fmt.Errorf("consume: %w", err)
}
