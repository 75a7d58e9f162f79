package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/itinerary/internal/domain/model"
)

// This file contains the ports between the State service and its infrastructure.
// Services depend on these interfaces; data and adapter packages implement them.

// JobRepository persists job aggregates. Every mutation is a single conditional statement so
// concurrent handlers for different branches of the same job never overwrite each other.
type JobRepository interface {
	// Create (re)initialises the aggregate: every slot unresolved, no notification recorded.
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	Delete(ctx context.Context, id string) (bool, error)
	// UpdateBranch writes one slot unless the job is unknown or already notified; false means no row changed.
	UpdateBranch(ctx context.Context, params UpdateBranchParams) (bool, error)
	CompletionStatus(ctx context.Context, id string) (model.CompletionStatus, error)
	// ClaimNotification atomically takes the right to publish completion. At most one caller wins
	// while the claim is live; an expired, unconfirmed claim can be taken over.
	ClaimNotification(ctx context.Context, params ClaimNotificationParams) (bool, error)
	ConfirmNotification(ctx context.Context, params ConfirmNotificationParams) (bool, error)
	ReleaseNotification(ctx context.Context, params ReleaseNotificationParams) (bool, error)
}

// UpdateBranchParams groups the inputs of JobRepository.UpdateBranch.
type UpdateBranchParams struct {
	JobID  string
	Branch model.Branch
	State  model.BranchState
	Result json.RawMessage
	Now    time.Time
}

// ClaimNotificationParams groups the inputs of JobRepository.ClaimNotification.
type ClaimNotificationParams struct {
	JobID string
	Token string
	Now   time.Time
	Until time.Time
}

// ConfirmNotificationParams groups the inputs of JobRepository.ConfirmNotification.
type ConfirmNotificationParams struct {
	JobID      string
	Token      string
	NotifiedAt time.Time
}

// ReleaseNotificationParams groups the inputs of JobRepository.ReleaseNotification.
type ReleaseNotificationParams struct {
	JobID string
	Token string
}

// EventPublisher hands outbound events to the transport. A nil error means the transport accepted the event.
type EventPublisher interface {
	PublishStatus(ctx context.Context, update model.JobStatusUpdate) error
	PublishCompletion(ctx context.Context, event model.ProcessingComplete) error
}

// StatusStore mirrors the latest status of each job for operators.
type StatusStore interface {
	Put(ctx context.Context, update model.JobStatusUpdate) error
	Get(ctx context.Context, jobID string) (*model.JobStatusUpdate, error)
}
