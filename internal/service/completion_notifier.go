package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/itinerary/internal/core"
	domainjob "github.com/target/itinerary/internal/domain/job"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/observability/metrics"
	"github.com/target/itinerary/internal/observability/statsd"
)

const releaseTimeout = 5 * time.Second

// NotifierObservability groups the optional outputs of CompletionNotifier.
type NotifierObservability struct {
	Status  *StatusReporter
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// CompletionNotifierOptions groups dependencies for CompletionNotifier.
type CompletionNotifierOptions struct {
	Repo      core.JobRepository     // Required: owns the notification claim
	Publisher core.EventPublisher    // Required: carries processing.complete
	Policy    *domainjob.ClaimPolicy // Optional: defaults to a 30s lease
	Observe   NotifierObservability  // Optional: status mirror, metrics, logger
}

// CompletionNotifier publishes the terminal event for a job at most once. Only the caller whose
// conditional claim succeeds may publish; a failed publish releases the claim for the next delivery.
type CompletionNotifier struct {
	repo      core.JobRepository
	publisher core.EventPublisher
	policy    *domainjob.ClaimPolicy
	status    *StatusReporter
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time
	newToken  func() string
}

// NewCompletionNotifier constructs a CompletionNotifier.
func NewCompletionNotifier(opts CompletionNotifierOptions) (*CompletionNotifier, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("EventPublisher is required")
	}
	policy := opts.Policy
	if policy == nil {
		var err error
		policy, err = domainjob.NewClaimPolicy(30 * time.Second)
		if err != nil {
			return nil, fmt.Errorf("create claim policy: %w", err)
		}
	}
	logger := opts.Observe.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionNotifier{
		repo:      opts.Repo,
		publisher: opts.Publisher,
		policy:    policy,
		status:    opts.Observe.Status,
		metrics:   opts.Observe.Metrics,
		logger:    logger.With("component", "completion_notifier"),
		now:       utcNow,
		newToken:  uuid.NewString,
	}, nil
}

// Notify attempts to publish ProcessingComplete for jobID after observed was evaluated as terminal.
// It returns true only for the caller that published. Losing the claim to a notification that
// already happened is not an error; losing it to a live lease held by another caller is a
// retryable conflict, so the message comes back after the holder confirms or its lease expires.
func (n *CompletionNotifier) Notify(ctx context.Context, jobID string, observed model.CompletionStatus) (bool, error) {
	window := n.policy.Window(n.newToken(), n.now())
	won, err := n.repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: jobID,
		Token: window.Token,
		Now:   window.ClaimedAt,
		Until: window.ExpiresAt,
	})
	if err != nil {
		n.emit(observed, metrics.ResultError, err)
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if !won {
		return false, n.claimLost(ctx, jobID, observed)
	}

	job, err := n.repo.GetByID(ctx, jobID)
	if err != nil {
		n.release(ctx, jobID, window.Token)
		n.emit(observed, metrics.ResultError, err)
		return false, fmt.Errorf("load job for notification: %w", err)
	}
	// The snapshot is authoritative; a reset between evaluation and claim makes it pending again.
	outcome := job.Completion()
	if !outcome.Terminal() {
		n.release(ctx, jobID, window.Token)
		n.logger.InfoContext(ctx, "job no longer terminal after claim", "job_id", jobID, "observed", observed)
		n.emit(observed, metrics.ResultNoop, nil)
		return false, nil
	}

	event := model.NewProcessingComplete(job, outcome, n.now())
	pubCtx, cancel := context.WithTimeout(ctx, n.policy.PublishBudget())
	err = n.publisher.PublishCompletion(pubCtx, event)
	cancel()
	if err != nil {
		n.release(ctx, jobID, window.Token)
		n.emit(outcome, metrics.ResultError, err)
		return false, apperrors.Publish(err, "publish processing complete")
	}

	confirmed, err := n.repo.ConfirmNotification(ctx, core.ConfirmNotificationParams{
		JobID:      jobID,
		Token:      window.Token,
		NotifiedAt: event.CompletedAt,
	})
	switch {
	case err != nil:
		n.logger.ErrorContext(ctx, "notification published but not confirmed", "job_id", jobID, "error", err)
	case !confirmed:
		n.logger.WarnContext(ctx, "notification claim expired before confirm", "job_id", jobID)
	}

	n.status.Record(ctx, model.NewJobStatusUpdate(jobID, model.StatusForCompletion(outcome), "", event.CompletedAt))
	n.emit(outcome, metrics.ResultSuccess, nil)
	n.logger.InfoContext(ctx, "processing complete published", "job_id", jobID, "outcome", outcome)
	return true, nil
}

// claimLost decides whether a lost claim needs another delivery.
func (n *CompletionNotifier) claimLost(ctx context.Context, jobID string, observed model.CompletionStatus) error {
	job, err := n.repo.GetByID(ctx, jobID)
	switch {
	case apperrors.IsNotFound(err):
		n.emit(observed, metrics.ResultNoop, nil)
		return nil
	case err != nil:
		n.emit(observed, metrics.ResultError, err)
		return fmt.Errorf("load job after lost claim: %w", err)
	case job.Notified():
		n.logger.DebugContext(ctx, "notification already recorded", "job_id", jobID)
		n.emit(observed, metrics.ResultNoop, nil)
		return nil
	case !job.Completion().Terminal():
		n.emit(observed, metrics.ResultNoop, nil)
		return nil
	}

	conflict := apperrors.Conflictf("job %s notification claimed by another worker", jobID)
	if job.NotifyClaimExpiresAt != nil {
		conflict = apperrors.Conflictf("job %s notification claimed by another worker until %s",
			jobID, job.NotifyClaimExpiresAt.Format(time.RFC3339))
	}
	n.logger.InfoContext(ctx, "notification claim held elsewhere; awaiting redelivery", "job_id", jobID)
	n.emit(observed, metrics.ResultError, conflict)
	return conflict
}

func (n *CompletionNotifier) release(ctx context.Context, jobID, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if _, err := n.repo.ReleaseNotification(ctx, core.ReleaseNotificationParams{JobID: jobID, Token: token}); err != nil {
		n.logger.WarnContext(ctx, "notification claim not released; it will expire",
			"job_id", jobID,
			"lease", n.policy.Lease(),
			"error", err,
		)
	}
}

func (n *CompletionNotifier) emit(outcome model.CompletionStatus, result string, err error) {
	metrics.EmitNotification(n.metrics, metrics.NotificationMetric{
		Outcome: string(outcome),
		Result:  result,
		Err:     err,
	})
}
