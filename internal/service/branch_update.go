package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

// completionNotifier is the part of CompletionNotifier branch handlers depend on.
type completionNotifier interface {
	Notify(ctx context.Context, jobID string, observed model.CompletionStatus) (bool, error)
}

// BranchUpdateHandlerOptions groups dependencies for BranchUpdateHandler.
type BranchUpdateHandlerOptions struct {
	Repo     core.JobRepository // Required: job repository
	Notifier completionNotifier // Required: terminal event gate
	Status   *StatusReporter    // Optional: branch_resolved mirror
	Logger   *slog.Logger       // Optional: structured logger
}

// BranchUpdateHandler applies one branch's result to its slot and notifies once the job is terminal.
// One instance exists per branch; C is that branch's command type.
type BranchUpdateHandler[C model.BranchCommand] struct {
	branch   model.Branch
	repo     core.JobRepository
	notifier completionNotifier
	status   *StatusReporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewBranchUpdateHandler constructs the handler for branch.
func NewBranchUpdateHandler[C model.BranchCommand](
	branch model.Branch,
	opts BranchUpdateHandlerOptions,
) (*BranchUpdateHandler[C], error) {
	if !branch.Valid() {
		return nil, fmt.Errorf("unknown branch %q", branch)
	}
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("completion notifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchUpdateHandler[C]{
		branch:   branch,
		repo:     opts.Repo,
		notifier: opts.Notifier,
		status:   opts.Status,
		logger:   logger.With("component", "branch_update_handler", "branch", string(branch)),
		now:      utcNow,
	}, nil
}

// Branch returns the slot this handler owns.
func (h *BranchUpdateHandler[C]) Branch() model.Branch { return h.branch }

// Handle writes the branch slot, re-evaluates completion from a fresh read and, when terminal,
// hands the job to the notifier.
func (h *BranchUpdateHandler[C]) Handle(ctx context.Context, cmd C) Result {
	if err := cmd.Validate(); err != nil {
		return Failure(err)
	}
	jobID := cmd.AggregateID()

	payload, err := cmd.BranchPayload()
	if err != nil {
		return Failure(apperrors.Wrapf(err, apperrors.ErrCodeValidation, "encode %s result", h.branch))
	}
	state := model.BranchStateFor(cmd.BranchSucceeded())
	now := h.now()

	updated, err := h.repo.UpdateBranch(ctx, core.UpdateBranchParams{
		JobID:  jobID,
		Branch: h.branch,
		State:  state,
		Result: payload,
		Now:    now,
	})
	if err != nil {
		return Failure(fmt.Errorf("update %s slot: %w", h.branch, err))
	}
	if updated {
		h.status.Record(ctx, model.NewJobStatusUpdate(jobID, model.JobStatusBranchResolved,
			fmt.Sprintf("%s %s", h.branch, state), now))
	} else {
		// Unknown or already-notified job. Still evaluate so a redelivery after a failed publish can finish.
		h.logger.DebugContext(ctx, "branch update not applied", "job_id", jobID)
	}

	completion, err := h.repo.CompletionStatus(ctx, jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.logger.InfoContext(ctx, "branch result for unknown job ignored", "job_id", jobID)
			return Success()
		}
		return Failure(fmt.Errorf("evaluate completion: %w", err))
	}
	if !completion.Terminal() {
		return Success()
	}

	if _, err := h.notifier.Notify(ctx, jobID, completion); err != nil {
		return Failure(fmt.Errorf("notify completion: %w", err))
	}
	return Success()
}
