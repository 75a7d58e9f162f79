package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

const jobColumns = `
  id, starting_address, destination_address, email,
  geocoding_state, geocoding_result,
  directions_state, directions_result,
  weather_state, weather_result,
  imaging_state, imaging_result,
  notified_at, notify_claim_token, notify_claim_expires_at,
  created_at, updated_at`

const upsertJobQuery = `
	INSERT INTO jobs (id, starting_address, destination_address, email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		starting_address = excluded.starting_address,
		destination_address = excluded.destination_address,
		email = excluded.email,
		geocoding_state = 'unresolved',
		geocoding_result = NULL,
		directions_state = 'unresolved',
		directions_result = NULL,
		weather_state = 'unresolved',
		weather_result = NULL,
		imaging_state = 'unresolved',
		imaging_result = NULL,
		notified_at = NULL,
		notify_claim_token = NULL,
		notify_claim_expires_at = NULL,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`

// JobRepo implements core.JobRepository on SQLite.
type JobRepo struct {
	db           *sql.DB
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo wraps an opened SQLite database.
func NewJobRepo(db *sql.DB, cfg data.RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{db: db, timeProvider: tp, logger: logger.With("component", "job_repo", "store", "sqlite")}
}

func (r *JobRepo) ready(id string) error {
	if r == nil || r.db == nil {
		return data.ErrRepoNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return data.ErrJobIDRequired
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
	now := toMillis(r.timeProvider.Now())
	if _, err := r.db.ExecContext(ctx, upsertJobQuery,
		req.ID, req.StartingAddress, req.DestinationAddress, req.Email, now, now); err != nil {
		return nil, fmt.Errorf("create job: %w", mapError(err))
	}
	return r.GetByID(ctx, req.ID)
}

// GetByID loads a job. A missing job yields a NotFound AppError.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if err := r.ready(id); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", mapError(err))
	}
	return job, nil
}

// Delete removes a job; false means nothing was deleted.
func (r *JobRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.ready(id); err != nil {
		return false, err
	}
	return r.exec(ctx, "delete job", `DELETE FROM jobs WHERE id = ?`, id)
}

// UpdateBranch writes one slot unless the job is unknown or already notified.
func (r *JobRepo) UpdateBranch(ctx context.Context, params core.UpdateBranchParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	cols, err := data.ColumnsFor(params.Branch)
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
	query := fmt.Sprintf(
		`UPDATE jobs SET %s = ?, %s = ?, updated_at = ? WHERE id = ? AND notified_at IS NULL`,
		cols.State, cols.Result,
	)
	return r.exec(ctx, "update branch", query,
		string(params.State), data.NullableJSON(params.Result), toMillis(now), params.JobID)
}

// CompletionStatus evaluates the job's four slot states.
func (r *JobRepo) CompletionStatus(ctx context.Context, id string) (model.CompletionStatus, error) {
	if err := r.ready(id); err != nil {
		return "", err
	}
	var g, d, w, i string
	err := r.db.QueryRowContext(ctx,
		`SELECT geocoding_state, directions_state, weather_state, imaging_state FROM jobs WHERE id = ?`, id,
	).Scan(&g, &d, &w, &i)
	if err != nil {
		return "", fmt.Errorf("completion status: %w", mapError(err))
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
		return false, data.ErrClaimTokenMissing
	}
	now := toMillis(params.Now)
	return r.exec(ctx, "claim notification", `
		UPDATE jobs
		SET notify_claim_token = ?, notify_claim_expires_at = ?, updated_at = ?
		WHERE id = ?
		  AND notified_at IS NULL
		  AND (notify_claim_expires_at IS NULL OR notify_claim_expires_at <= ?)`,
		params.Token, toMillis(params.Until), now, params.JobID, now)
}

// ConfirmNotification records the notification for the claim holder.
func (r *JobRepo) ConfirmNotification(ctx context.Context, params core.ConfirmNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, data.ErrClaimTokenMissing
	}
	at := toMillis(params.NotifiedAt)
	return r.exec(ctx, "confirm notification", `
		UPDATE jobs
		SET notified_at = ?, notify_claim_expires_at = NULL, updated_at = ?
		WHERE id = ? AND notify_claim_token = ? AND notified_at IS NULL`,
		at, at, params.JobID, params.Token)
}

// ReleaseNotification drops the claim so a redelivered branch event can retry the notification.
func (r *JobRepo) ReleaseNotification(ctx context.Context, params core.ReleaseNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, data.ErrClaimTokenMissing
	}
	return r.exec(ctx, "release notification", `
		UPDATE jobs
		SET notify_claim_token = NULL, notify_claim_expires_at = NULL
		WHERE id = ? AND notify_claim_token = ? AND notified_at IS NULL`,
		params.JobID, params.Token)
}

func (r *JobRepo) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                      model.Job
		states                   [4]string
		results                  [4]sql.NullString
		notifiedAt, claimExpires sql.NullInt64
		claimToken               sql.NullString
		createdAt, updatedAt     int64
	)
	err := row.Scan(
		&job.ID, &job.StartingAddress, &job.DestinationAddress, &job.Email,
		&states[0], &results[0],
		&states[1], &results[1],
		&states[2], &results[2],
		&states[3], &results[3],
		&notifiedAt, &claimToken, &claimExpires,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	for i, b := range model.AllBranches() {
		slot := model.BranchSlot{State: model.BranchState(states[i])}
		if results[i].Valid {
			slot.Result = data.RawJSON(&results[i].String)
		}
		job.SetSlot(b, slot)
	}
	job.NotifiedAt = nullableMillis(notifiedAt)
	job.NotifyClaimExpiresAt = nullableMillis(claimExpires)
	if claimToken.Valid {
		token := claimToken.String
		job.NotifyClaimToken = &token
	}
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return &job, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "job not found")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "sqlite operation timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "sqlite operation canceled")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeRepository, "sqlite error")
	}
}
