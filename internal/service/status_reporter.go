package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
)

// StatusReporterOptions groups dependencies for StatusReporter.
type StatusReporterOptions struct {
	Publisher core.EventPublisher // Optional: outbound job.status events
	Store     core.StatusStore    // Optional: operator-facing status mirror
	Logger    *slog.Logger        // Optional: structured logger
}

// StatusReporter emits JobStatusUpdate events and mirrors them into the status store.
// A nil *StatusReporter discards everything.
type StatusReporter struct {
	publisher core.EventPublisher
	store     core.StatusStore
	logger    *slog.Logger
}

// NewStatusReporter constructs a StatusReporter. Both sinks are optional.
func NewStatusReporter(opts StatusReporterOptions) *StatusReporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		publisher: opts.Publisher,
		store:     opts.Store,
		logger:    logger.With("component", "status_reporter"),
	}
}

// Publish sends update to the transport and then mirrors it. Only the transport error is returned.
func (r *StatusReporter) Publish(ctx context.Context, update model.JobStatusUpdate) error {
	if r == nil {
		return nil
	}
	if r.publisher != nil {
		if err := r.publisher.PublishStatus(ctx, update); err != nil {
			return fmt.Errorf("publish job status: %w", err)
		}
	}
	r.Record(ctx, update)
	return nil
}

// Record mirrors update into the status store, logging failures.
func (r *StatusReporter) Record(ctx context.Context, update model.JobStatusUpdate) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Put(ctx, update); err != nil {
		r.logger.WarnContext(ctx, "status mirror write failed",
			"job_id", update.JobID,
			"status", update.Status,
			"error", err,
		)
	}
}
