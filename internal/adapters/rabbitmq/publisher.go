package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
)

// ErrPublishNacked is returned when the broker negatively confirms a publish.
var ErrPublishNacked = errors.New("rabbitmq publish not confirmed by broker")

type confirmPublisher interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
}

// publisherSession is one confirm-mode channel and the connection behind it.
type publisherSession struct {
	ch     confirmPublisher
	closed func() bool
	close  func() error
}

type sessionDialer func(ctx context.Context) (*publisherSession, error)

const defaultPublishBackoff = time.Second

// Publisher sends outbound events to a topic exchange using publisher confirms. The routing key is
// the message type. A dropped connection or channel is re-dialled on the next publish.
type Publisher struct {
	exchange string
	logger   *slog.Logger
	dial     sessionDialer
	backoff  time.Duration

	mu      sync.Mutex
	session *publisherSession
	closed  bool
}

var _ core.EventPublisher = (*Publisher)(nil)

// DialPublisher connects, puts a channel in confirm mode and declares the exchange. The first
// session is opened eagerly so startup fails fast on a bad URL.
func DialPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}
	p := newPublisher(amqpDialer(url, exchange), exchange, logger)
	session, err := p.dial(context.Background())
	if err != nil {
		return nil, err
	}
	p.session = session
	return p, nil
}

func amqpDialer(url, exchange string) sessionDialer {
	return func(context.Context) (*publisherSession, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq connect failed: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq confirm mode failed: %w", err)
		}
		if err := (Topology{Exchange: exchange}).declareExchange(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
		return &publisherSession{
			ch:     ch,
			closed: func() bool { return ch.IsClosed() || conn.IsClosed() },
			close: func() error {
				var errs []error
				if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
					errs = append(errs, err)
				}
				if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			},
		}, nil
	}
}

func newPublisher(dial sessionDialer, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		exchange: exchange,
		dial:     dial,
		backoff:  defaultPublishBackoff,
		logger:   logger.With("component", "rabbitmq_publisher", "exchange", exchange),
	}
}

// PublishStatus publishes a job.status event.
func (p *Publisher) PublishStatus(ctx context.Context, update model.JobStatusUpdate) error {
	return p.publish(ctx, model.MessageJobStatus, update.JobID, update)
}

// PublishCompletion publishes a processing.complete event and waits for the broker confirm.
func (p *Publisher) PublishCompletion(ctx context.Context, event model.ProcessingComplete) error {
	return p.publish(ctx, model.MessageProcessingComplete, event.JobID, event)
}

func (p *Publisher) publish(ctx context.Context, msgType model.MessageType, jobID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: jobID,
		Type:          string(msgType),
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}

	conf, err := p.send(ctx, msgType, msg)
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s failed: %w", msgType, err)
	}
	if conf == nil {
		return nil
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq confirm %s: %w", msgType, err)
	}
	if !acked {
		// Outstanding confirms are nacked when the channel closes under them.
		p.mu.Lock()
		p.dropStaleLocked()
		p.mu.Unlock()
		return fmt.Errorf("%w: %s job_id=%s", ErrPublishNacked, msgType, jobID)
	}
	return nil
}

// send publishes on the current session. A publish rejected because the channel or connection
// closed never reached the broker, so it is retried once on a fresh session.
func (p *Publisher) send(ctx context.Context, msgType model.MessageType, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	// A channel is not safe for concurrent publishes with confirms.
	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; ; attempt++ {
		session, err := p.sessionLocked(ctx)
		if err != nil {
			return nil, err
		}
		conf, err := session.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, string(msgType), false, false, msg)
		if err == nil {
			return conf, nil
		}
		if !errors.Is(err, amqp.ErrClosed) && !session.closed() {
			return nil, err
		}
		p.logger.WarnContext(ctx, "rabbitmq publish channel closed; reconnecting", "error", err)
		p.dropSessionLocked()
		if attempt > 0 {
			return nil, err
		}
	}
}

// sessionLocked returns the live session, dialling with backoff while ctx allows.
func (p *Publisher) sessionLocked(ctx context.Context) (*publisherSession, error) {
	for {
		if p.closed {
			return nil, amqp.ErrClosed
		}
		p.dropStaleLocked()
		if p.session != nil {
			return p.session, nil
		}
		session, err := p.dial(ctx)
		if err == nil {
			p.session = session
			p.logger.InfoContext(ctx, "rabbitmq publisher connected")
			return session, nil
		}
		p.logger.WarnContext(ctx, "rabbitmq publisher connect failed; retrying", "error", err, "backoff", p.backoff)

		t := time.NewTimer(p.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w (last connect error: %v)", ctx.Err(), err)
		case <-t.C:
		}
	}
}

func (p *Publisher) dropStaleLocked() {
	if p.session != nil && p.session.closed() {
		p.dropSessionLocked()
	}
}

func (p *Publisher) dropSessionLocked() {
	if p.session == nil {
		return
	}
	if err := p.session.close(); err != nil {
		p.logger.Warn("rabbitmq publisher session close failed", "error", err)
	}
	p.session = nil
}

// Close releases the current session. Publishing after Close fails with amqp.ErrClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.session == nil {
		return nil
	}
	err := p.session.close()
	p.session = nil
	return err
}
