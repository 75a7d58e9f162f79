package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrRepoNotConfigured = errors.New("job repository not configured")
	ErrJobIDRequired     = errors.New("job_id is required")
	ErrUnknownBranch     = errors.New("unknown branch")
	ErrClaimTokenMissing = errors.New("notification claim token is required")
	ErrStatusNotFound    = errors.New("job status not found")
)
