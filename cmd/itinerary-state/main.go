package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(slog.LevelInfo)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.SlogLevel())

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config: &cfg,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting itinerary state service",
		"store_driver", cfg.Store.Driver,
		"events_publisher", cfg.Events.Publisher,
		"queue", cfg.RabbitMQ.Queue,
		"concurrency", cfg.State.Concurrency,
		"status_mirror", cfg.Redis.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
