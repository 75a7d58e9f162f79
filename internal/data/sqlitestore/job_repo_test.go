package sqlitestore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

func newTestRepo(t *testing.T) (*JobRepo, *data.FixedTimeProvider) {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := data.NewFixedTimeProvider(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	return NewJobRepo(db, data.RepoConfig{TimeProvider: clock}), clock
}

func createJob(t *testing.T, repo *JobRepo) *model.Job {
	t.Helper()
	job, err := repo.Create(context.Background(), &model.CreateJobRequest{
		ID:                 uuid.NewString(),
		StartingAddress:    "1 Main St",
		DestinationAddress: "2 High St",
		Email:              "traveller@example.com",
	})
	require.NoError(t, err)
	return job
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()

	job := createJob(t, repo)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	for _, b := range model.AllBranches() {
		assert.Equal(t, model.BranchUnresolved, job.Slot(b).State, b)
		assert.Nil(t, job.Slot(b).Result, b)
	}
	assert.Nil(t, job.NotifiedAt)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = repo.GetByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobRepo_CreateResetsExistingJob(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	ok, err := repo.UpdateBranch(ctx, core.UpdateBranchParams{
		JobID: job.ID, Branch: model.BranchWeather, State: model.BranchSucceeded, Result: json.RawMessage(`{"success":true}`),
	})
	require.NoError(t, err)
	require.True(t, ok)

	again, err := repo.Create(ctx, &model.CreateJobRequest{
		ID: job.ID, StartingAddress: "3 Low St", DestinationAddress: "4 Mid St", Email: "other@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, model.BranchUnresolved, again.Weather.State)
	assert.Nil(t, again.Weather.Result)
	assert.Equal(t, "3 Low St", again.StartingAddress)
}

func TestJobRepo_UpdateBranchIsFieldScoped(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	for _, b := range []model.Branch{model.BranchDirections, model.BranchImaging} {
		ok, err := repo.UpdateBranch(ctx, core.UpdateBranchParams{
			JobID: job.ID, Branch: b, State: model.BranchFailed, Result: json.RawMessage(`{"b":"` + string(b) + `"}`),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BranchUnresolved, got.Geocoding.State)
	assert.Equal(t, model.BranchFailed, got.Directions.State)
	assert.JSONEq(t, `{"b":"directions"}`, string(got.Directions.Result))
	assert.Equal(t, model.BranchUnresolved, got.Weather.State)
	assert.Equal(t, model.BranchFailed, got.Imaging.State)

	status, err := repo.CompletionStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CompletionPending, status)
}

func TestJobRepo_UpdateBranchUnknownJobOrBranch(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.UpdateBranch(ctx, core.UpdateBranchParams{
		JobID: uuid.NewString(), Branch: model.BranchWeather, State: model.BranchSucceeded,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.UpdateBranch(ctx, core.UpdateBranchParams{
		JobID: uuid.NewString(), Branch: model.Branch("radar"), State: model.BranchSucceeded,
	})
	require.ErrorIs(t, err, data.ErrUnknownBranch)

	_, err = repo.CompletionStatus(ctx, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobRepo_NotificationClaimLifecycle(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)
	now := clock.Now()

	won, err := repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "a", Now: now, Until: now.Add(30 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "b", Now: now.Add(time.Second), Until: now.Add(31 * time.Second),
	})
	require.NoError(t, err)
	assert.False(t, won, "live claim blocks a second claimer")

	released, err := repo.ReleaseNotification(ctx, core.ReleaseNotificationParams{JobID: job.ID, Token: "b"})
	require.NoError(t, err)
	assert.False(t, released, "only the holder can release")

	released, err = repo.ReleaseNotification(ctx, core.ReleaseNotificationParams{JobID: job.ID, Token: "a"})
	require.NoError(t, err)
	assert.True(t, released)

	won, err = repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "b", Now: now.Add(2 * time.Second), Until: now.Add(32 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, won)

	confirmed, err := repo.ConfirmNotification(ctx, core.ConfirmNotificationParams{
		JobID: job.ID, Token: "b", NotifiedAt: now.Add(3 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, confirmed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NotifiedAt)
	assert.Equal(t, now.Add(3*time.Second), *got.NotifiedAt)

	won, err = repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "c", Now: now.Add(time.Hour), Until: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, won, "a notified job can never be claimed again")

	ok, err := repo.UpdateBranch(ctx, core.UpdateBranchParams{
		JobID: job.ID, Branch: model.BranchWeather, State: model.BranchSucceeded,
	})
	require.NoError(t, err)
	assert.False(t, ok, "slots are frozen once notified")
}

func TestJobRepo_ExpiredClaimCanBeTakenOver(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)
	now := clock.Now()

	won, err := repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "crashed", Now: now, Until: now.Add(10 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.ClaimNotification(ctx, core.ClaimNotificationParams{
		JobID: job.ID, Token: "rescuer", Now: now.Add(10 * time.Second), Until: now.Add(20 * time.Second),
	})
	require.NoError(t, err)
	assert.True(t, won)

	confirmed, err := repo.ConfirmNotification(ctx, core.ConfirmNotificationParams{
		JobID: job.ID, Token: "crashed", NotifiedAt: now.Add(11 * time.Second),
	})
	require.NoError(t, err)
	assert.False(t, confirmed, "a superseded holder cannot confirm")
}

func TestJobRepo_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	repo, clock := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)
	now := clock.Now()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := repo.ClaimNotification(ctx, core.ClaimNotificationParams{
				JobID: job.ID, Token: uuid.NewString(), Now: now, Until: now.Add(time.Minute),
			})
			assert.NoError(t, err, "claimer %d", i)
			if won {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestJobRepo_Delete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	deleted, err := repo.Delete(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Delete(ctx, " ")
	assert.ErrorIs(t, err, data.ErrJobIDRequired)
}
