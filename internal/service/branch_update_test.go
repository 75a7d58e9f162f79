package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/mocks"
)

type stubNotifier struct {
	calls []model.CompletionStatus
	won   bool
	err   error
}

func (s *stubNotifier) Notify(_ context.Context, _ string, observed model.CompletionStatus) (bool, error) {
	s.calls = append(s.calls, observed)
	return s.won, s.err
}

func newWeatherHandler(t *testing.T) (*BranchUpdateHandler[model.WeatherComplete], *mocks.MockJobRepository, *stubNotifier) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	notifier := &stubNotifier{won: true}
	h, err := NewBranchUpdateHandler[model.WeatherComplete](model.BranchWeather, BranchUpdateHandlerOptions{
		Repo:     repo,
		Notifier: notifier,
	})
	require.NoError(t, err)
	h.now = func() time.Time { return fixedNow }
	return h, repo, notifier
}

func weatherCmd(success bool) model.WeatherComplete {
	return model.WeatherComplete{
		JobID: uuid.NewString(),
		Forecast: model.ForecastResult{
			Success: success,
			Items:   []model.ForecastItem{{Time: "2026-03-01T12:00:00Z", TemperatureC: 9, Summary: "clear"}},
		},
	}
}

func TestNewBranchUpdateHandler_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)

	_, err := NewBranchUpdateHandler[model.WeatherComplete]("traffic", BranchUpdateHandlerOptions{Repo: repo, Notifier: &stubNotifier{}})
	assert.Error(t, err)
	_, err = NewBranchUpdateHandler[model.WeatherComplete](model.BranchWeather, BranchUpdateHandlerOptions{Notifier: &stubNotifier{}})
	assert.Error(t, err)
	_, err = NewBranchUpdateHandler[model.WeatherComplete](model.BranchWeather, BranchUpdateHandlerOptions{Repo: repo})
	assert.Error(t, err)

	h, err := NewBranchUpdateHandler[model.WeatherComplete](model.BranchWeather, BranchUpdateHandlerOptions{Repo: repo, Notifier: &stubNotifier{}})
	require.NoError(t, err)
	assert.Equal(t, model.BranchWeather, h.Branch())
}

func TestBranchUpdateHandler_PendingDoesNotNotify(t *testing.T) {
	h, repo, notifier := newWeatherHandler(t)
	cmd := weatherCmd(false)
	payload, err := json.Marshal(cmd.Forecast)
	require.NoError(t, err)

	gomock.InOrder(
		repo.EXPECT().UpdateBranch(gomock.Any(), core.UpdateBranchParams{
			JobID:  cmd.JobID,
			Branch: model.BranchWeather,
			State:  model.BranchFailed,
			Result: payload,
			Now:    fixedNow,
		}).Return(true, nil),
		repo.EXPECT().CompletionStatus(gomock.Any(), cmd.JobID).Return(model.CompletionPending, nil),
	)

	res := h.Handle(context.Background(), cmd)
	assert.True(t, res.Succeeded(), res.Err())
	assert.Empty(t, notifier.calls)
}

func TestBranchUpdateHandler_TerminalNotifies(t *testing.T) {
	h, repo, notifier := newWeatherHandler(t)
	cmd := weatherCmd(true)

	repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(true, nil)
	repo.EXPECT().CompletionStatus(gomock.Any(), cmd.JobID).Return(model.CompletionFailure, nil)

	res := h.Handle(context.Background(), cmd)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []model.CompletionStatus{model.CompletionFailure}, notifier.calls)
}

func TestBranchUpdateHandler_UnappliedUpdateStillEvaluates(t *testing.T) {
	h, repo, notifier := newWeatherHandler(t)
	notifier.won = false
	cmd := weatherCmd(true)

	repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CompletionStatus(gomock.Any(), cmd.JobID).Return(model.CompletionSuccess, nil)

	res := h.Handle(context.Background(), cmd)
	assert.True(t, res.Succeeded())
	assert.Len(t, notifier.calls, 1)
}

func TestBranchUpdateHandler_UnknownJobIsNoop(t *testing.T) {
	h, repo, notifier := newWeatherHandler(t)
	cmd := weatherCmd(true)

	repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CompletionStatus(gomock.Any(), cmd.JobID).Return(model.CompletionStatus(""), apperrors.NotFoundf("job %s not found", cmd.JobID))

	res := h.Handle(context.Background(), cmd)
	assert.True(t, res.Succeeded())
	assert.Empty(t, notifier.calls)
}

func TestBranchUpdateHandler_Failures(t *testing.T) {
	t.Run("invalid job id", func(t *testing.T) {
		h, _, _ := newWeatherHandler(t)
		cmd := weatherCmd(true)
		cmd.JobID = ""
		res := h.Handle(context.Background(), cmd)
		assert.True(t, apperrors.IsValidation(res.Err()))
		assert.False(t, res.Retryable())
	})

	t.Run("update failure", func(t *testing.T) {
		h, repo, _ := newWeatherHandler(t)
		repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(false, apperrors.Repository(errors.New("down"), "update"))
		res := h.Handle(context.Background(), weatherCmd(true))
		assert.True(t, res.Retryable())
	})

	t.Run("evaluation failure", func(t *testing.T) {
		h, repo, _ := newWeatherHandler(t)
		repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(true, nil)
		repo.EXPECT().CompletionStatus(gomock.Any(), gomock.Any()).Return(model.CompletionStatus(""), errors.New("timeout"))
		res := h.Handle(context.Background(), weatherCmd(true))
		assert.False(t, res.Succeeded())
		assert.True(t, res.Retryable())
	})

	t.Run("publish failure leaves message for redelivery", func(t *testing.T) {
		h, repo, notifier := newWeatherHandler(t)
		notifier.won, notifier.err = false, apperrors.Publish(errors.New("nack"), "publish")
		repo.EXPECT().UpdateBranch(gomock.Any(), gomock.Any()).Return(true, nil)
		repo.EXPECT().CompletionStatus(gomock.Any(), gomock.Any()).Return(model.CompletionSuccess, nil)
		res := h.Handle(context.Background(), weatherCmd(true))
		assert.True(t, apperrors.IsPublish(res.Err()))
		assert.True(t, res.Retryable())
	})
}
