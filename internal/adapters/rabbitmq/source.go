package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/itinerary/internal/adapters/queuerunner"
)

// SourceOptions configures a Source.
type SourceOptions struct {
	URL         string
	Topology    Topology
	Prefetch    int
	ConsumerTag string
	// ReconnectBackoff is the pause between connection attempts; defaults to 2s.
	ReconnectBackoff time.Duration
	Logger           *slog.Logger
}

// Source consumes the State queue with manual acknowledgement and reconnects when the
// broker connection or channel drops.
type Source struct {
	opts   SourceOptions
	logger *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	closed     bool
}

var _ queuerunner.Source = (*Source)(nil)

// NewSource validates options. The connection is opened lazily by Connect or the first Receive.
func NewSource(opts SourceOptions) (*Source, error) {
	if opts.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if opts.Topology.Queue == "" {
		return nil, errors.New("rabbitmq queue is required")
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opts: opts, logger: logger.With("component", "rabbitmq_source", "queue", opts.Topology.Queue)}, nil
}

// Connect opens a session immediately so startup fails fast on a bad URL or topology.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queuerunner.ErrSourceClosed
	}
	if s.deliveries != nil {
		return nil
	}
	return s.connectLocked(ctx)
}

// Receive returns the next delivery, reconnecting with backoff while ctx is alive.
func (s *Source) Receive(ctx context.Context) (queuerunner.Delivery, error) {
	for {
		deliveries, err := s.session(ctx)
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deliveries:
			if ok {
				return delivery{d: d}, nil
			}
			s.dropSession(deliveries)
		}
	}
}

func (s *Source) session(ctx context.Context) (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			return nil, queuerunner.ErrSourceClosed
		}
		if s.deliveries != nil {
			return s.deliveries, nil
		}
		err := s.connectLocked(ctx)
		if err == nil {
			return s.deliveries, nil
		}
		s.logger.WarnContext(ctx, "rabbitmq connect failed; retrying", "error", err, "backoff", s.opts.ReconnectBackoff)

		// Other workers wait on the mutex; they will see the session once it is up.
		t := time.NewTimer(s.opts.ReconnectBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Source) connectLocked(ctx context.Context) error {
	conn, err := amqp.Dial(s.opts.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq connect failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	if err := ch.Qos(s.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq qos setup failed: %w", err)
	}
	if err := s.opts.Topology.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, s.opts.Topology.Queue, s.opts.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq consume setup failed: %w", err)
	}

	s.conn, s.ch, s.deliveries = conn, ch, deliveries
	s.logger.InfoContext(ctx, "rabbitmq consuming", "prefetch", s.opts.Prefetch)
	return nil
}

// dropSession discards the session that produced stale, unless another worker already replaced it.
func (s *Source) dropSession(stale <-chan amqp.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries != stale {
		return
	}
	s.logger.Warn("rabbitmq deliveries channel closed; reconnecting")
	s.closeLocked()
}

func (s *Source) closeLocked() {
	if s.ch != nil {
		if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			s.logger.Warn("rabbitmq channel close failed", "error", err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			s.logger.Warn("rabbitmq connection close failed", "error", err)
		}
	}
	s.conn, s.ch, s.deliveries = nil, nil, nil
}

// Close stops consuming. Unacked deliveries are returned to the queue by the broker.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeLocked()
	return nil
}
