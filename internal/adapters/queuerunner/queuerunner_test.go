package queuerunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/observability/statsd"
	"github.com/target/itinerary/internal/service"
)

type fakeDelivery struct {
	msgType model.MessageType
	body    []byte
	ackErr  error

	mu        sync.Mutex
	acked     bool
	left      bool
	retryable bool
}

func (d *fakeDelivery) MessageType() model.MessageType { return d.msgType }
func (d *fakeDelivery) Body() []byte                   { return d.body }
func (d *fakeDelivery) MessageID() string              { return "msg-1" }

func (d *fakeDelivery) Ack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ackErr != nil {
		return d.ackErr
	}
	d.acked = true
	return nil
}

func (d *fakeDelivery) Leave(_ context.Context, retryable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.left, d.retryable = true, retryable
	return nil
}

type dispatchFunc func(ctx context.Context, t model.MessageType, body []byte) service.Result

func (f dispatchFunc) Dispatch(ctx context.Context, t model.MessageType, body []byte) service.Result {
	return f(ctx, t, body)
}

func newTestProcessor(t *testing.T, d Dispatcher, sink statsd.Sink) (*Processor, *[]State) {
	t.Helper()
	var states []State
	p, err := NewProcessor(ProcessorOptions{
		Dispatcher:   d,
		Metrics:      sink,
		OnTransition: func(s State) { states = append(states, s) },
	})
	require.NoError(t, err)
	return p, &states
}

func TestProcessor_SuccessAcks(t *testing.T) {
	sink := &statsd.MemorySink{}
	p, states := newTestProcessor(t, dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result {
		return service.Success()
	}), sink)
	d := &fakeDelivery{msgType: model.MessageWeatherComplete}

	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, OutcomeAcked, p.Process(context.Background(), d))
	assert.True(t, d.acked)
	assert.False(t, d.left)
	assert.Equal(t, []State{StateReceiving, StateAcked, StateIdle}, *states)
	assert.Equal(t, StateIdle, p.State())

	processed := sink.Named("command.processed")
	require.Len(t, processed, 1)
	assert.Equal(t, "weather.complete", processed[0].Tags["command"])
	assert.Equal(t, "acked", processed[0].Tags["outcome"])
}

func TestProcessor_FailureLeavesForRedelivery(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "repository failure", err: apperrors.Repository(errors.New("down"), "update"), retryable: true},
		{name: "publish failure", err: apperrors.Publish(errors.New("nack"), "publish"), retryable: true},
		{name: "validation failure", err: apperrors.Validation("job_id is required"), retryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p, states := newTestProcessor(t, dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result {
				calls++
				return service.Failure(tt.err)
			}), nil)
			d := &fakeDelivery{msgType: model.MessageImagingComplete}

			assert.Equal(t, OutcomeLeftForRedelivery, p.Process(context.Background(), d))
			assert.Equal(t, 1, calls, "no local retry")
			assert.False(t, d.acked)
			assert.True(t, d.left)
			assert.Equal(t, tt.retryable, d.retryable)
			assert.Equal(t, []State{StateReceiving, StateLeftForRedelivery, StateIdle}, *states)
		})
	}
}

func TestProcessor_AckFailureIsLeftForRedelivery(t *testing.T) {
	p, _ := newTestProcessor(t, dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result {
		return service.Success()
	}), nil)
	d := &fakeDelivery{msgType: model.MessageJobCreated, ackErr: errors.New("channel closed")}
	assert.Equal(t, OutcomeLeftForRedelivery, p.Process(context.Background(), d))
}

func TestProcessor_PanicBecomesRetryableFailure(t *testing.T) {
	p, _ := newTestProcessor(t, dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result {
		panic("boom")
	}), nil)
	d := &fakeDelivery{msgType: model.MessageJobCreated}

	assert.Equal(t, OutcomeLeftForRedelivery, p.Process(context.Background(), d))
	assert.True(t, d.left)
	assert.True(t, d.retryable)
}

func TestProcessor_AppliesTimeout(t *testing.T) {
	p, err := NewProcessor(ProcessorOptions{
		Timeout: 20 * time.Millisecond,
		Dispatcher: dispatchFunc(func(ctx context.Context, _ model.MessageType, _ []byte) service.Result {
			<-ctx.Done()
			return service.Failure(apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTimeout, "dispatch"))
		}),
	})
	require.NoError(t, err)
	d := &fakeDelivery{msgType: model.MessageJobCreated}
	assert.Equal(t, OutcomeLeftForRedelivery, p.Process(context.Background(), d))
	assert.True(t, d.retryable)
}

type chanSource struct {
	ch  chan Delivery
	err error
}

func (s *chanSource) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return nil, s.err
			}
			return nil, ErrSourceClosed
		}
		return d, nil
	}
}

func TestRunner_DrainsSourceAcrossWorkers(t *testing.T) {
	src := &chanSource{ch: make(chan Delivery, 32)}
	deliveries := make([]*fakeDelivery, 32)
	for i := range deliveries {
		deliveries[i] = &fakeDelivery{msgType: model.MessageDirectionsComplete}
		src.ch <- deliveries[i]
	}
	close(src.ch)

	var handled atomic.Int32
	r, err := NewRunner(RunnerOptions{
		Source: src,
		Dispatcher: dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result {
			handled.Add(1)
			return service.Success()
		}),
		Concurrency: 4,
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int32(32), handled.Load())
	for _, d := range deliveries {
		assert.True(t, d.acked)
	}
}

func TestRunner_FatalSourceErrorStopsAllWorkers(t *testing.T) {
	src := &chanSource{ch: make(chan Delivery), err: errors.New("connection lost")}
	close(src.ch)

	r, err := NewRunner(RunnerOptions{
		Source:      src,
		Dispatcher:  dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result { return service.Success() }),
		Concurrency: 3,
	})
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestRunner_StopsOnCancel(t *testing.T) {
	src := &chanSource{ch: make(chan Delivery)}
	r, err := NewRunner(RunnerOptions{
		Source:     src,
		Dispatcher: dispatchFunc(func(context.Context, model.MessageType, []byte) service.Result { return service.Success() }),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNewRunner_RequiresDeps(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Dispatcher: service.NewCommandBus()})
	assert.Error(t, err)
	_, err = NewRunner(RunnerOptions{Source: &chanSource{}})
	assert.Error(t, err)
}
