package config

import (
	"log/slog"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: job store and status store configuration
//   - transport.go: RabbitMQ and Kafka configuration
//   - services.go: service mode and State consumer configuration
//   - observability.go: metrics configuration
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"state-consumer"`

	// Job store configuration
	Store    StoreConfig
	Postgres DBConfig     `envPrefix:"DB_"`
	SQLite   SQLiteConfig `envPrefix:"SQLITE_"`
	Mongo    MongoConfig  `envPrefix:"MONGO_"`
	Redis    RedisConfig  `envPrefix:"REDIS_"`

	// Transport configuration
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Events   EventsConfig

	// State consumer configuration
	State StateConfig `envPrefix:"STATE_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Store.Sanitize()
	c.SQLite.Sanitize()
	c.Mongo.Sanitize()
	c.RabbitMQ.Sanitize()
	c.Kafka.Sanitize()
	c.Events.Sanitize()
	c.State.Sanitize()
	c.Observability.Sanitize()
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsStateConsumerEnabled returns true if the State consumer is enabled.
func (c *AppConfig) IsStateConsumerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeStateConsumer]
}
