// Package queuerunner turns transport deliveries into command bus dispatches and decides
// whether each delivery is acknowledged or left for the transport to redeliver.
package queuerunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
	obserrors "github.com/target/itinerary/internal/observability/errors"
	"github.com/target/itinerary/internal/observability/metrics"
	"github.com/target/itinerary/internal/observability/statsd"
	"github.com/target/itinerary/internal/service"
)

// Delivery is one message received from the transport.
type Delivery interface {
	MessageType() model.MessageType
	Body() []byte
	MessageID() string
	// Ack removes the message from the transport.
	Ack(ctx context.Context) error
	// Leave hands the message back. retryable=false lets the transport dead-letter it.
	Leave(ctx context.Context, retryable bool) error
}

// Dispatcher routes a message body to its command handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, messageType model.MessageType, body []byte) service.Result
}

// State is the processor's position in Idle → Receiving → {Acked, LeftForRedelivery} → Idle.
type State int32

const (
	StateIdle State = iota
	StateReceiving
	StateAcked
	StateLeftForRedelivery
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateAcked:
		return "acked"
	case StateLeftForRedelivery:
		return "left_for_redelivery"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome is what happened to a delivery.
type Outcome int

const (
	OutcomeAcked Outcome = iota + 1
	OutcomeLeftForRedelivery
)

func (o Outcome) String() string {
	if o == OutcomeAcked {
		return "acked"
	}
	return "left_for_redelivery"
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Dispatcher Dispatcher
	// Timeout bounds one dispatch; zero means only the caller's deadline applies.
	Timeout time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
	// OnTransition observes every state change.
	OnTransition func(State)
}

// Processor handles one delivery at a time. It never retries locally; redelivery belongs to the transport.
type Processor struct {
	dispatcher   Dispatcher
	timeout      time.Duration
	metrics      statsd.Sink
	logger       *slog.Logger
	onTransition func(State)
	state        atomic.Int32
}

// NewProcessor constructs a Processor.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		dispatcher:   opts.Dispatcher,
		timeout:      opts.Timeout,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "queue_processor"),
		onTransition: opts.OnTransition,
	}, nil
}

// State returns the current state.
func (p *Processor) State() State { return State(p.state.Load()) }

func (p *Processor) transition(s State) {
	p.state.Store(int32(s))
	if p.onTransition != nil {
		p.onTransition(s)
	}
}

// Process dispatches d and acknowledges it on success. Any failure, including a failed ack,
// leaves the message for redelivery.
func (p *Processor) Process(ctx context.Context, d Delivery) Outcome {
	p.transition(StateReceiving)
	defer p.transition(StateIdle)

	start := time.Now()
	msgType := d.MessageType()
	log := p.logger.With("command", string(msgType), "message_id", d.MessageID())

	res := p.dispatch(ctx, d)
	if res.Succeeded() {
		if err := d.Ack(ctx); err != nil {
			log.ErrorContext(ctx, "ack failed; message will be redelivered", "error", err)
			p.transition(StateLeftForRedelivery)
			p.emit(msgType, OutcomeLeftForRedelivery, time.Since(start), err)
			return OutcomeLeftForRedelivery
		}
		p.transition(StateAcked)
		p.emit(msgType, OutcomeAcked, time.Since(start), nil)
		return OutcomeAcked
	}

	err := res.Err()
	retryable := res.Retryable()
	log.ErrorContext(ctx, "command failed",
		"error", err,
		"error_class", obserrors.Classify(err),
		"retryable", retryable,
	)
	if lerr := d.Leave(ctx, retryable); lerr != nil {
		log.WarnContext(ctx, "leave for redelivery failed", "error", lerr)
	}
	p.transition(StateLeftForRedelivery)
	p.emit(msgType, OutcomeLeftForRedelivery, time.Since(start), err)
	return OutcomeLeftForRedelivery
}

func (p *Processor) dispatch(ctx context.Context, d Delivery) (res service.Result) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = service.Failure(apperrors.Internal(fmt.Sprintf("handler panic: %v", rec)))
		}
	}()
	return p.dispatcher.Dispatch(ctx, d.MessageType(), d.Body())
}

func (p *Processor) emit(msgType model.MessageType, outcome Outcome, d time.Duration, err error) {
	metrics.EmitCommand(p.metrics, metrics.CommandMetric{
		Command:  string(msgType),
		Outcome:  outcome.String(),
		Duration: d,
		Err:      err,
	})
}
