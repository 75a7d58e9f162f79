package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
)

// JobCreationHandlerOptions groups dependencies for JobCreationHandler.
type JobCreationHandlerOptions struct {
	Repo   core.JobRepository // Required: job repository
	Status *StatusReporter    // Optional: processing status fan-out
	Logger *slog.Logger       // Optional: structured logger
}

// JobCreationHandler (re)initialises a job aggregate when a job.created command arrives.
type JobCreationHandler struct {
	repo   core.JobRepository
	status *StatusReporter
	logger *slog.Logger
	now    func() time.Time
}

var _ CommandHandler[model.JobCreated] = (*JobCreationHandler)(nil)

// NewJobCreationHandler constructs a JobCreationHandler.
func NewJobCreationHandler(opts JobCreationHandlerOptions) (*JobCreationHandler, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobCreationHandler{
		repo:   opts.Repo,
		status: opts.Status,
		logger: logger.With("component", "job_creation_handler"),
		now:    utcNow,
	}, nil
}

// Handle deletes any existing aggregate for the job, inserts a fresh one and reports it as processing.
// Running it twice for the same job leaves the same initial state.
func (h *JobCreationHandler) Handle(ctx context.Context, cmd model.JobCreated) Result {
	if err := cmd.Validate(); err != nil {
		return Failure(err)
	}

	if _, err := h.repo.Delete(ctx, cmd.JobID); err != nil {
		return Failure(fmt.Errorf("reset job: %w", err))
	}
	job, err := h.repo.Create(ctx, cmd.CreateRequest())
	if err != nil {
		return Failure(fmt.Errorf("create job: %w", err))
	}
	h.logger.InfoContext(ctx, "job initialised", "job_id", job.ID)

	update := model.NewJobStatusUpdate(job.ID, model.JobStatusProcessing, "", h.now())
	if err := h.status.Publish(ctx, update); err != nil {
		// Redelivering job.created would wipe branch results that arrived since; keep the ack.
		h.logger.WarnContext(ctx, "processing status not published", "job_id", job.ID, "error", err)
	}
	return Success()
}

func utcNow() time.Time { return time.Now().UTC() }
