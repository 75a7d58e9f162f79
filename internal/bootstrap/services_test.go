package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/domain/model"
)

func TestStateTopology(t *testing.T) {
	topo := stateTopology(config.RabbitMQConfig{
		Exchange:           "itinerary",
		Queue:              "itinerary.state",
		DeadLetterExchange: "itinerary.dlx",
	})
	assert.Equal(t, "itinerary", topo.Exchange)
	assert.Equal(t, "itinerary.state", topo.Queue)
	assert.Equal(t, "itinerary.dlx", topo.DeadLetterExchange)
	assert.ElementsMatch(t, model.InboundMessageTypes(), topo.Bindings)
}

func TestBuildMetrics_Disabled(t *testing.T) {
	sink, closeFn := buildMetrics(slog.Default(), config.ObservabilityMetricsConfig{Enabled: false})
	assert.Nil(t, sink)
	require.NotNil(t, closeFn)
	closeFn()
}

func TestRunBackground_SkipsDisabledServices(t *testing.T) {
	var started atomic.Int32
	svc := backgroundService{
		mode: config.ServiceModeStateConsumer,
		name: "state consumer",
		start: func(context.Context) error {
			started.Add(1)
			return nil
		},
	}

	err := runBackground(context.Background(), map[config.ServiceMode]bool{}, []backgroundService{svc}, slog.Default())
	require.NoError(t, err)
	assert.Zero(t, started.Load())
}

func TestRunBackground_CancellationIsCleanStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := backgroundService{
		mode: config.ServiceModeStateConsumer,
		name: "state consumer",
		start: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- runBackground(ctx, map[config.ServiceMode]bool{config.ServiceModeStateConsumer: true}, []backgroundService{svc}, slog.Default())
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runBackground did not return after cancellation")
	}
}

func TestRunBackground_FailureIsReturned(t *testing.T) {
	boom := errors.New("broker unreachable")
	svc := backgroundService{
		mode:  config.ServiceModeStateConsumer,
		name:  "state consumer",
		start: func(context.Context) error { return boom },
	}

	err := runBackground(context.Background(), map[config.ServiceMode]bool{config.ServiceModeStateConsumer: true}, []backgroundService{svc}, slog.Default())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "state consumer failed")
}

func TestRunStateConsumer_RequiresHandlers(t *testing.T) {
	err := RunStateConsumer(context.Background(), StateConsumerConfig{})
	assert.Error(t, err)
}

func TestStoresClose_ReverseOrder(t *testing.T) {
	var order []string
	s := &Stores{closers: []func(context.Context) error{
		func(context.Context) error { order = append(order, "db"); return nil },
		func(context.Context) error { order = append(order, "redis"); return errors.New("already closed") },
	}}

	err := s.Close(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"redis", "db"}, order)
	assert.NoError(t, s.Close(context.Background()))

	var nilStores *Stores
	assert.NoError(t, nilStores.Close(context.Background()))
}

func TestOpenStores_RequiresConfig(t *testing.T) {
	_, err := OpenStores(context.Background(), StoreOptions{})
	assert.Error(t, err)
}
