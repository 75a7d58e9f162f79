package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data/pgxutil"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

// RepoConfig holds configuration options for the job repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the Postgres job repository. Every mutation is one conditional UPDATE so
// handlers for different branches of the same job can run concurrently without losing writes.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo", "store", "postgres"),
	}
}

func (r *JobRepo) ready(id string) error {
	if r == nil || r.DB == nil {
		return ErrRepoNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return ErrJobIDRequired
	}
	return nil
}

// Create inserts a fresh aggregate or resets an existing one with the same id.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create request is required")
	}
	if err := r.ready(req.ID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now()
	row, err := pgxutil.QueryOne[jobRow](ctx, r.DB, upsertJobQuery,
		req.ID, req.StartingAddress, req.DestinationAddress, req.Email, now)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", apperrors.MapDBError(err))
	}
	return row.toModel(), nil
}

// GetByID loads a job. A missing job yields a NotFound AppError.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if err := r.ready(id); err != nil {
		return nil, err
	}
	row, err := pgxutil.QueryOne[jobRow](ctx, r.DB, selectJobQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", apperrors.MapDBError(err))
	}
	return row.toModel(), nil
}

// Delete removes a job; false means nothing was deleted.
func (r *JobRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.ready(id); err != nil {
		return false, err
	}
	return r.exec(ctx, "delete job", deleteJobQuery, id)
}

// UpdateBranch writes one slot unless the job is unknown or already notified.
func (r *JobRepo) UpdateBranch(ctx context.Context, params core.UpdateBranchParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	cols, err := ColumnsFor(params.Branch)
	if err != nil {
		return false, err
	}
	if !params.State.Valid() {
		return false, apperrors.Validationf("invalid branch state %q", params.State)
	}
	now := params.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	return r.exec(ctx, "update branch", updateBranchQuery(cols),
		params.JobID, string(params.State), NullableJSON(params.Result), now)
}

// CompletionStatus evaluates the job's four slot states.
func (r *JobRepo) CompletionStatus(ctx context.Context, id string) (model.CompletionStatus, error) {
	if err := r.ready(id); err != nil {
		return "", err
	}
	var g, d, w, i string
	if err := r.DB.QueryRowContext(ctx, selectBranchStatesQuery, id).Scan(&g, &d, &w, &i); err != nil {
		return "", fmt.Errorf("completion status: %w", apperrors.MapDBError(err))
	}
	return model.Evaluate(model.BranchStates{
		Geocoding:  model.BranchState(g),
		Directions: model.BranchState(d),
		Weather:    model.BranchState(w),
		Imaging:    model.BranchState(i),
	}), nil
}

// ClaimNotification takes the notification claim if no live claim exists and nothing was notified.
func (r *JobRepo) ClaimNotification(ctx context.Context, params core.ClaimNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, ErrClaimTokenMissing
	}
	return r.exec(ctx, "claim notification", claimNotificationQuery,
		params.JobID, params.Token, params.Now, params.Until)
}

// ConfirmNotification records the notification for the claim holder.
func (r *JobRepo) ConfirmNotification(ctx context.Context, params core.ConfirmNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, ErrClaimTokenMissing
	}
	return r.exec(ctx, "confirm notification", confirmNotificationQuery,
		params.JobID, params.Token, params.NotifiedAt)
}

// ReleaseNotification drops the claim so a redelivered branch event can retry the notification.
func (r *JobRepo) ReleaseNotification(ctx context.Context, params core.ReleaseNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, ErrClaimTokenMissing
	}
	return r.exec(ctx, "release notification", releaseNotificationQuery, params.JobID, params.Token)
}

func (r *JobRepo) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}
