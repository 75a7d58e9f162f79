package mongostore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/testutil"
)

func TestJobRepo_Mongo(t *testing.T) {
	coll := testutil.SetupTestMongoCollection(t)
	clock := data.NewFixedTimeProvider(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	repo := NewJobRepo(coll, data.RepoConfig{TimeProvider: clock})
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	cmd := testutil.NewJobCreated().Build()
	job, err := repo.Create(ctx, cmd.CreateRequest())
	require.NoError(t, err)
	assert.Equal(t, model.CompletionPending, job.Completion())

	for _, b := range model.AllBranches() {
		state := model.BranchSucceeded
		if b == model.BranchImaging {
			state = model.BranchFailed
		}
		ok, updErr := repo.UpdateBranch(ctx, core.UpdateBranchParams{
			JobID: job.ID, Branch: b, State: state, Result: json.RawMessage(`{"b":"` + string(b) + `"}`),
		})
		require.NoError(t, updErr)
		require.True(t, ok)
	}

	status, err := repo.CompletionStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CompletionFailure, status)

	now := clock.Now()
	won, err := repo.ClaimNotification(ctx, core.ClaimNotificationParams{JobID: job.ID, Token: "a", Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.True(t, won)
	won, err = repo.ClaimNotification(ctx, core.ClaimNotificationParams{JobID: job.ID, Token: "b", Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, won)

	confirmed, err := repo.ConfirmNotification(ctx, core.ConfirmNotificationParams{JobID: job.ID, Token: "a", NotifiedAt: now})
	require.NoError(t, err)
	assert.True(t, confirmed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified())
	assert.JSONEq(t, `{"b":"weather"}`, string(got.Weather.Result))

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))

	deleted, err := repo.Delete(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}
