// Package metrics emits the State service's standard metric shapes.
package metrics

import (
	"time"

	obserrors "github.com/target/itinerary/internal/observability/errors"
	"github.com/target/itinerary/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// CommandMetric captures one processed delivery.
type CommandMetric struct {
	Command  string
	Outcome  string
	Duration time.Duration
	Err      error
}

// EmitCommand emits command.processed and command.duration.
func EmitCommand(sink statsd.Sink, in CommandMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"command": in.Command,
		"outcome": in.Outcome,
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("command.processed", 1, tags)
	if in.Duration > 0 {
		sink.Timing("command.duration", in.Duration, CloneTags(tags))
	}
}

// NotificationMetric captures one completion notification attempt.
type NotificationMetric struct {
	Outcome string
	Result  string
	Err     error
}

// EmitNotification emits job.notification tagged by completion outcome and result.
func EmitNotification(sink statsd.Sink, in NotificationMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"outcome": in.Outcome,
		"result":  in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("job.notification", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
