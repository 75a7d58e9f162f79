package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/adapters/kafka"
	"github.com/target/itinerary/internal/adapters/rabbitmq"
	"github.com/target/itinerary/internal/core"
)

// EventPublisher is an outbound transport that owns its broker connection.
type EventPublisher interface {
	core.EventPublisher
	Close() error
}

// OpenPublisher connects the transport selected by EVENTS_PUBLISHER.
//
//nolint:ireturn // the transport is chosen at runtime.
func OpenPublisher(cfg *config.AppConfig, logger *slog.Logger) (EventPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Events.Publisher {
	case config.EventsPublisherKafka:
		pub, err := kafka.NewPublisher(kafka.PublisherOptions{
			Brokers: cfg.Kafka.Brokers,
			Topics: kafka.Topics{
				Completion: cfg.Kafka.TopicComplete,
				Status:     cfg.Kafka.TopicStatus,
			},
			WriteTimeout: cfg.Kafka.WriteTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		logger.Info("event publisher ready", "transport", "kafka", "brokers", cfg.Kafka.Brokers)
		return pub, nil
	default:
		pub, err := rabbitmq.DialPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("create rabbitmq publisher: %w", err)
		}
		logger.Info("event publisher ready", "transport", "rabbitmq", "exchange", cfg.RabbitMQ.Exchange)
		return pub, nil
	}
}
