package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/itinerary/internal/errors"
	"github.com/target/itinerary/internal/observability/statsd"
)

func TestEmitCommand(t *testing.T) {
	sink := &statsd.MemorySink{}
	EmitCommand(sink, CommandMetric{
		Command:  "weather.complete",
		Outcome:  "left_for_redelivery",
		Duration: 20 * time.Millisecond,
		Err:      apperrors.Repository(errors.New("conn reset"), "update branch"),
	})

	counts := sink.Named("command.processed")
	require.Len(t, counts, 1)
	assert.Equal(t, "app_repository", counts[0].Tags["error_class"])
	assert.Equal(t, "weather.complete", counts[0].Tags["command"])

	timings := sink.Named("command.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 20.0, timings[0].Value, 0.001)
}

func TestEmitNotification(t *testing.T) {
	sink := &statsd.MemorySink{}
	EmitNotification(sink, NotificationMetric{Outcome: "success", Result: ResultNoop})

	samples := sink.Named("job.notification")
	require.Len(t, samples, 1)
	assert.Equal(t, ResultNoop, samples[0].Tags["result"])
	assert.NotContains(t, samples[0].Tags, "error_class")

	EmitNotification(nil, NotificationMetric{})
}
