// Package mongostore is the MongoDB job repository. Each job is one document and every mutation
// is a single filtered UpdateOne, which MongoDB applies atomically per document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

type slotDocument struct {
	State  string `bson:"state"`
	Result string `bson:"result,omitempty"`
}

type jobDocument struct {
	ID                   string       `bson:"_id"`
	StartingAddress      string       `bson:"starting_address"`
	DestinationAddress   string       `bson:"destination_address"`
	Email                string       `bson:"email"`
	Geocoding            slotDocument `bson:"geocoding"`
	Directions           slotDocument `bson:"directions"`
	Weather              slotDocument `bson:"weather"`
	Imaging              slotDocument `bson:"imaging"`
	NotifiedAt           *time.Time   `bson:"notified_at"`
	NotifyClaimToken     *string      `bson:"notify_claim_token"`
	NotifyClaimExpiresAt *time.Time   `bson:"notify_claim_expires_at"`
	CreatedAt            time.Time    `bson:"created_at"`
	UpdatedAt            time.Time    `bson:"updated_at"`
}

func (d *jobDocument) toModel() *model.Job {
	slot := func(s slotDocument) model.BranchSlot {
		out := model.BranchSlot{State: model.BranchState(s.State)}
		if s.Result != "" {
			out.Result = []byte(s.Result)
		}
		return out
	}
	return &model.Job{
		ID:                   d.ID,
		StartingAddress:      d.StartingAddress,
		DestinationAddress:   d.DestinationAddress,
		Email:                d.Email,
		Geocoding:            slot(d.Geocoding),
		Directions:           slot(d.Directions),
		Weather:              slot(d.Weather),
		Imaging:              slot(d.Imaging),
		NotifiedAt:           utc(d.NotifiedAt),
		NotifyClaimToken:     d.NotifyClaimToken,
		NotifyClaimExpiresAt: utc(d.NotifyClaimExpiresAt),
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// JobRepo implements core.JobRepository on a MongoDB collection.
type JobRepo struct {
	coll         *mongo.Collection
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo wraps a collection.
func NewJobRepo(coll *mongo.Collection, cfg data.RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = data.RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{coll: coll, timeProvider: tp, logger: logger.With("component", "job_repo", "store", "mongo")}
}

// EnsureIndexes creates the index used to find jobs awaiting notification.
func (r *JobRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "notified_at", Value: 1}, {Key: "notify_claim_expires_at", Value: 1}},
		Options: options.Index().SetName("pending_notification"),
	})
	if err != nil {
		return fmt.Errorf("create jobs index: %w", err)
	}
	return nil
}

func (r *JobRepo) ready(id string) error {
	if r == nil || r.coll == nil {
		return data.ErrRepoNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return data.ErrJobIDRequired
	}
	return nil
}

// Create replaces any existing document with a fresh aggregate.
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

	now := r.timeProvider.Now().UTC().Truncate(time.Millisecond)
	unresolved := slotDocument{State: string(model.BranchUnresolved)}
	doc := jobDocument{
		ID:                 req.ID,
		StartingAddress:    req.StartingAddress,
		DestinationAddress: req.DestinationAddress,
		Email:              req.Email,
		Geocoding:          unresolved,
		Directions:         unresolved,
		Weather:            unresolved,
		Imaging:            unresolved,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": req.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", mapError(err))
	}
	return doc.toModel(), nil
}

// GetByID loads a job. A missing job yields a NotFound AppError.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if err := r.ready(id); err != nil {
		return nil, err
	}
	var doc jobDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("get job: %w", mapError(err))
	}
	return doc.toModel(), nil
}

// Delete removes a job; false means nothing was deleted.
func (r *JobRepo) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.ready(id); err != nil {
		return false, err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete job: %w", mapError(err))
	}
	return res.DeletedCount > 0, nil
}

// UpdateBranch writes one slot unless the job is unknown or already notified.
func (r *JobRepo) UpdateBranch(ctx context.Context, params core.UpdateBranchParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if !params.Branch.Valid() {
		return false, fmt.Errorf("%w: %q", data.ErrUnknownBranch, params.Branch)
	}
	if !params.State.Valid() {
		return false, apperrors.Validationf("invalid branch state %q", params.State)
	}
	now := params.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	prefix := string(params.Branch)
	set := bson.M{
		prefix + ".state":  string(params.State),
		prefix + ".result": string(params.Result),
		"updated_at":       now.UTC(),
	}
	return r.updateOne(ctx, "update branch",
		bson.M{"_id": params.JobID, "notified_at": nil},
		bson.M{"$set": set})
}

// CompletionStatus evaluates the job's four slot states.
func (r *JobRepo) CompletionStatus(ctx context.Context, id string) (model.CompletionStatus, error) {
	if err := r.ready(id); err != nil {
		return "", err
	}
	projection := bson.M{"geocoding.state": 1, "directions.state": 1, "weather.state": 1, "imaging.state": 1}
	var doc jobDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		return "", fmt.Errorf("completion status: %w", mapError(err))
	}
	return doc.toModel().Completion(), nil
}

// ClaimNotification takes the notification claim if no live claim exists and nothing was notified.
func (r *JobRepo) ClaimNotification(ctx context.Context, params core.ClaimNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, data.ErrClaimTokenMissing
	}
	filter := bson.M{
		"_id":         params.JobID,
		"notified_at": nil,
		"$or": bson.A{
			bson.M{"notify_claim_expires_at": nil},
			bson.M{"notify_claim_expires_at": bson.M{"$lte": params.Now.UTC()}},
		},
	}
	update := bson.M{"$set": bson.M{
		"notify_claim_token":      params.Token,
		"notify_claim_expires_at": params.Until.UTC(),
		"updated_at":              params.Now.UTC(),
	}}
	return r.updateOne(ctx, "claim notification", filter, update)
}

// ConfirmNotification records the notification for the claim holder.
func (r *JobRepo) ConfirmNotification(ctx context.Context, params core.ConfirmNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, data.ErrClaimTokenMissing
	}
	at := params.NotifiedAt.UTC()
	return r.updateOne(ctx, "confirm notification",
		bson.M{"_id": params.JobID, "notify_claim_token": params.Token, "notified_at": nil},
		bson.M{"$set": bson.M{"notified_at": at, "notify_claim_expires_at": nil, "updated_at": at}})
}

// ReleaseNotification drops the claim so a redelivered branch event can retry the notification.
func (r *JobRepo) ReleaseNotification(ctx context.Context, params core.ReleaseNotificationParams) (bool, error) {
	if err := r.ready(params.JobID); err != nil {
		return false, err
	}
	if params.Token == "" {
		return false, data.ErrClaimTokenMissing
	}
	return r.updateOne(ctx, "release notification",
		bson.M{"_id": params.JobID, "notify_claim_token": params.Token, "notified_at": nil},
		bson.M{"$set": bson.M{"notify_claim_token": nil, "notify_claim_expires_at": nil}})
}

func (r *JobRepo) updateOne(ctx context.Context, op string, filter, update bson.M) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return res.MatchedCount > 0, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "job not found")
	case errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "mongo operation timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "mongo operation canceled")
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "job already exists")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeRepository, "mongo error")
	}
}
