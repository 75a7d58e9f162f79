// Package mocks provides gomock doubles for the State service ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().CompletionStatus(gomock.Any(), jobID).Return(model.CompletionPending, nil)
package mocks

// Create, GetByID, Delete, UpdateBranch, CompletionStatus, ClaimNotification, ConfirmNotification, ReleaseNotification
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/itinerary/internal/core JobRepository

// PublishStatus, PublishCompletion
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_publisher_mock.go github.com/target/itinerary/internal/core EventPublisher

// Put, Get
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=status_store_mock.go github.com/target/itinerary/internal/core StatusStore
