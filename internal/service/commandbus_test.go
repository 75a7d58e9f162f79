package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/testutil"
)

func TestResult(t *testing.T) {
	assert.True(t, Success().Succeeded())
	assert.NoError(t, Success().Err())
	assert.False(t, Success().Retryable())

	repoErr := Failure(apperrors.Repository(errors.New("conn reset"), "update slot"))
	assert.False(t, repoErr.Succeeded())
	assert.True(t, repoErr.Retryable())

	invalid := Failure(apperrors.Validation("bad"))
	assert.False(t, invalid.Succeeded())
	assert.False(t, invalid.Retryable())

	empty := Failure(nil)
	assert.False(t, empty.Succeeded())
	assert.Error(t, empty.Err())
}

func TestCommandBus_DispatchDecodesAndValidates(t *testing.T) {
	bus := NewCommandBus()
	var got []model.JobCreated
	require.NoError(t, Register[model.JobCreated](bus, model.MessageJobCreated,
		CommandHandlerFunc[model.JobCreated](func(_ context.Context, cmd model.JobCreated) Result {
			got = append(got, cmd)
			return Success()
		})))

	want := testutil.NewJobCreated().Build()
	res := bus.Dispatch(context.Background(), model.MessageJobCreated, testutil.NewJobCreated().WithJobID(want.JobID).Body())
	require.True(t, res.Succeeded(), res.Err())
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])

	t.Run("invalid command never reaches handler", func(t *testing.T) {
		body := testutil.NewJobCreated().WithEmail("not-an-email").Body()
		res := bus.Dispatch(context.Background(), model.MessageJobCreated, body)
		assert.False(t, res.Succeeded())
		assert.True(t, apperrors.IsValidation(res.Err()))
		assert.False(t, res.Retryable())
		assert.Len(t, got, 1)
	})

	t.Run("undecodable body", func(t *testing.T) {
		res := bus.Dispatch(context.Background(), model.MessageJobCreated, []byte(`{"job_id":`))
		assert.True(t, apperrors.IsValidation(res.Err()))
		assert.False(t, res.Retryable())
	})

	t.Run("unknown message type", func(t *testing.T) {
		res := bus.Dispatch(context.Background(), model.MessageType("billing.complete"), []byte(`{}`))
		assert.True(t, apperrors.IsValidation(res.Err()))
	})
}

func TestCommandBus_DispatchNormalizesJobID(t *testing.T) {
	bus := NewCommandBus()
	var got []string
	require.NoError(t, Register[model.DirectionsComplete](bus, model.MessageDirectionsComplete,
		CommandHandlerFunc[model.DirectionsComplete](func(_ context.Context, cmd model.DirectionsComplete) Result {
			got = append(got, cmd.JobID)
			return Success()
		})))

	jobID := testutil.NewJobCreated().Build().JobID
	for _, spelling := range []string{strings.ToUpper(jobID), "{" + jobID + "}", " urn:uuid:" + jobID} {
		msg := testutil.BranchResult(spelling, model.BranchDirections, true)
		res := bus.Dispatch(context.Background(), msg.Type, msg.Body)
		require.True(t, res.Succeeded(), res.Err())
	}
	assert.Equal(t, []string{jobID, jobID, jobID}, got)
}

func TestCommandBus_HandlerFailurePropagates(t *testing.T) {
	bus := NewCommandBus()
	boom := apperrors.Repository(errors.New("db down"), "update slot")
	require.NoError(t, Register[model.WeatherComplete](bus, model.MessageWeatherComplete,
		CommandHandlerFunc[model.WeatherComplete](func(context.Context, model.WeatherComplete) Result {
			return Failure(boom)
		})))

	msg := testutil.BranchResult(testutil.NewJobCreated().Build().JobID, model.BranchWeather, true)
	res := bus.Dispatch(context.Background(), msg.Type, msg.Body)
	assert.ErrorIs(t, res.Err(), boom)
	assert.True(t, res.Retryable())
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	bus := NewCommandBus()
	h := CommandHandlerFunc[model.ImagingComplete](func(context.Context, model.ImagingComplete) Result { return Success() })

	require.NoError(t, Register[model.ImagingComplete](bus, model.MessageImagingComplete, h))
	err := Register[model.ImagingComplete](bus, model.MessageImagingComplete, h)
	assert.ErrorIs(t, err, ErrHandlerRegistered)

	assert.Error(t, Register[model.ImagingComplete](bus, "", h))
	assert.Error(t, Register[model.ImagingComplete](nil, model.MessageImagingComplete, h))
	assert.Equal(t, []model.MessageType{model.MessageImagingComplete}, bus.MessageTypes())
}
