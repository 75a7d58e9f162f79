package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/adapters/queuerunner"
	"github.com/target/itinerary/internal/adapters/rabbitmq"
	"github.com/target/itinerary/internal/domain/model"
	"github.com/target/itinerary/internal/observability/statsd"
	"github.com/target/itinerary/internal/service"
)

const (
	// shutdownWaitTimeout is the maximum time to wait for connections to close after services stop.
	shutdownWaitTimeout = 15 * time.Second
)

// ServiceContainer holds the long-lived dependencies shared by services.
type ServiceContainer struct {
	Stores    *Stores
	Publisher EventPublisher
	Metrics   statsd.Sink
	Handlers  *service.StateHandlers
}

// BuildServices opens stores and the event publisher and wires the State handlers.
// The returned cleanup closes everything that was opened.
func BuildServices(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*ServiceContainer, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, closeMetrics := buildMetrics(logger, cfg.Observability.Metrics)

	stores, err := OpenStores(ctx, StoreOptions{Config: cfg, Logger: logger})
	if err != nil {
		closeMetrics()
		return nil, nil, err
	}

	pub, err := OpenPublisher(cfg, logger)
	if err != nil {
		closeMetrics()
		return nil, nil, errors.Join(err, stores.Close(context.WithoutCancel(ctx)))
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWaitTimeout)
		defer cancel()
		if err := pub.Close(); err != nil {
			logger.Warn("close event publisher", "error", err)
		}
		if err := stores.Close(closeCtx); err != nil {
			logger.Warn("close stores", "error", err)
		}
		closeMetrics()
	}

	handlers, err := service.NewStateHandlers(service.StateHandlersOptions{
		Repo:       stores.Jobs,
		Events:     service.StateEvents{Publisher: pub, Store: stores.Status},
		ClaimLease: cfg.State.NotifyClaimLease,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build state handlers: %w", err)
	}

	return &ServiceContainer{
		Stores:    stores,
		Publisher: pub,
		Metrics:   metrics,
		Handlers:  handlers,
	}, cleanup, nil
}

//nolint:ireturn // a nil Sink disables emission.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) (statsd.Sink, func()) {
	if !cfg.IsEnabled() {
		return nil, func() {}
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil, func() {}
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("close statsd client", "error", err)
		}
	}
}

// stateTopology binds the State queue to every inbound command type.
func stateTopology(cfg config.RabbitMQConfig) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:           cfg.Exchange,
		Queue:              cfg.Queue,
		DeadLetterExchange: cfg.DeadLetterExchange,
		Bindings:           model.InboundMessageTypes(),
	}
}

// StateConsumerConfig contains configuration for the State consumer.
type StateConsumerConfig struct {
	RabbitMQ config.RabbitMQConfig
	State    config.StateConfig
	Handlers *service.StateHandlers
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// RunStateConsumer consumes the State queue until ctx is cancelled.
func RunStateConsumer(ctx context.Context, cfg StateConsumerConfig) error {
	if cfg.Handlers == nil {
		return errors.New("state handlers are required")
	}
	bus := service.NewCommandBus()
	if err := cfg.Handlers.Register(bus); err != nil {
		return fmt.Errorf("register state handlers: %w", err)
	}

	source, err := rabbitmq.NewSource(rabbitmq.SourceOptions{
		URL:              cfg.RabbitMQ.URL,
		Topology:         stateTopology(cfg.RabbitMQ),
		Prefetch:         cfg.RabbitMQ.Prefetch,
		ConsumerTag:      cfg.RabbitMQ.ConsumerTag,
		ReconnectBackoff: cfg.RabbitMQ.ReconnectBackoff,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create rabbitmq source: %w", err)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil && cfg.Logger != nil {
			cfg.Logger.Warn("close rabbitmq source", "error", closeErr)
		}
	}()
	if err := source.Connect(ctx); err != nil {
		return fmt.Errorf("connect rabbitmq source: %w", err)
	}

	runner, err := queuerunner.NewRunner(queuerunner.RunnerOptions{
		Source:         source,
		Dispatcher:     bus,
		Concurrency:    cfg.State.Concurrency,
		ProcessTimeout: cfg.State.ProcessTimeout,
		Metrics:        cfg.Metrics,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create queue runner: %w", err)
	}
	return runner.Run(ctx)
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *config.AppConfig, svc *ServiceContainer, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		{
			mode: config.ServiceModeStateConsumer,
			name: "state consumer",
			start: func(ctx context.Context) error {
				return RunStateConsumer(ctx, StateConsumerConfig{
					RabbitMQ: cfg.RabbitMQ,
					State:    cfg.State,
					Handlers: svc.Handlers,
					Metrics:  svc.Metrics,
					Logger:   logger,
				})
			},
		},
	}
}

// runBackground starts every enabled service and waits for all of them. The first failure
// cancels the rest; cancellation of ctx itself is a clean stop.
func runBackground(
	ctx context.Context,
	enabled map[config.ServiceMode]bool,
	services []backgroundService,
	logger *slog.Logger,
) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		if !enabled[svc.mode] {
			continue
		}
		group.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(ctx, "background service stopped", "service", svc.name)
			return nil
		})
	}
	return group.Wait()
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := BuildServices(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	err = runBackground(ctx, enabled, buildBackgroundServices(cfg.Config, svc, logger), logger)
	if ctx.Err() != nil {
		logger.Info("shutting down services...")
	}
	return err
}
