package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/testutil"
)

func TestRedisStatusStore_PutGet(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewRedisStatusStore(client, RedisStatusStoreOptions{TTL: time.Hour})
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 123, time.UTC)

	_, err := store.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate("job-1", model.JobStatusBranchResolved, "weather succeeded", at)))
	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusBranchResolved, got.Status)
	require.NotNil(t, got.Details)
	assert.Equal(t, "weather succeeded", *got.Details)
	assert.True(t, at.Equal(got.Timestamp))

	require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate("job-1", model.JobStatusCompleted, "", at)))
	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Nil(t, got.Details, "details of the previous status are cleared")

	ttl, err := client.TTL(ctx, defaultStatusKeyPrefix+"job-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStatusStore_BranchResolvedNeverReplacesTerminal(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewRedisStatusStore(client, RedisStatusStoreOptions{})
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for _, terminal := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			jobID := "job-" + string(terminal)
			require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate(jobID, model.JobStatusBranchResolved, "geocoding succeeded", at)))
			require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate(jobID, terminal, "", at.Add(time.Second))))

			// A slower worker mirrors its branch after the notifier recorded the outcome.
			require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate(jobID, model.JobStatusBranchResolved, "imaging succeeded", at)))

			got, err := store.Get(ctx, jobID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
			assert.Nil(t, got.Details)
			assert.True(t, at.Add(time.Second).Equal(got.Timestamp))

			// A re-created job starts a new lifecycle.
			require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate(jobID, model.JobStatusProcessing, "", at.Add(time.Minute))))
			require.NoError(t, store.Put(ctx, model.NewJobStatusUpdate(jobID, model.JobStatusBranchResolved, "weather succeeded", at.Add(time.Minute))))
			got, err = store.Get(ctx, jobID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusBranchResolved, got.Status)
		})
	}

	ttl, err := client.TTL(ctx, defaultStatusKeyPrefix+"job-completed").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "no TTL when none is configured")
}
