package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/bootstrap"
	"github.com/target/itinerary/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.InitLogger(cfg.SlogLevel())

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply job store migrations (Postgres schema, SQLite schema or Mongo indexes)",
			run:         runMigrations,
		},
		"show": {
			name:        "show",
			description: "Print a job aggregate with its branch slots and notification state",
			run:         runShow,
		},
		"status": {
			name:        "status",
			description: "Print the last status mirrored to Redis for a job",
			run:         runStatus,
		},
		"renotify": {
			name:        "renotify",
			description: "Re-evaluate a job and publish its completion if it was never notified",
			run:         runRenotify,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: itinerary-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(os.Stdout, "  %-12s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type jobOptions struct {
	JobID   string
	Timeout time.Duration
	JSON    bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

// parseJobFlags parses "[flags] <job-id>" for the per-job commands.
func parseJobFlags(name string, args []string) (jobOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := jobOptions{Timeout: defaultCommandTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	fs.BoolVar(&opts.JSON, "json", false, "Print raw JSON instead of a table")

	if err := fs.Parse(args); err != nil {
		return jobOptions{}, err
	}
	if fs.NArg() != 1 {
		return jobOptions{}, fmt.Errorf("usage: itinerary-admin %s [flags] <job-id>", name)
	}
	opts.JobID = model.CanonicalJobID(fs.Arg(0))
	if err := model.ValidateJobID(opts.JobID); err != nil {
		return jobOptions{}, err
	}
	if opts.Timeout <= 0 {
		return jobOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func (cmdCtx *commandContext) withTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// withStores opens the job store; the Redis mirror is opened only when wantStatus is set.
func (cmdCtx *commandContext) withStores(
	ctx context.Context,
	wantStatus, migrate bool,
	f func(*bootstrap.Stores) error,
) error {
	cfg := cmdCtx.Config
	cfg.Redis.Enabled = cfg.Redis.Enabled && wantStatus
	if wantStatus && !cfg.Redis.Enabled {
		return errors.New("redis status mirror is disabled (REDIS_ENABLED=false)")
	}

	stores, err := bootstrap.OpenStores(ctx, bootstrap.StoreOptions{
		Config:  &cfg,
		Logger:  cmdCtx.Logger,
		Migrate: migrate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stores.Close(context.WithoutCancel(ctx)); closeErr != nil {
			cmdCtx.Logger.Warn("close stores failed", "error", closeErr)
		}
	}()
	return f(stores)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(opts.Timeout)
	defer cancel()

	cmdCtx.Logger.Info("running job store migrations", "driver", cmdCtx.Config.Store.Driver)

	// Opening a store applies its migrations.
	if err := cmdCtx.withStores(ctx, false, true, func(*bootstrap.Stores) error { return nil }); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("show", args)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(opts.Timeout)
	defer cancel()

	return cmdCtx.withStores(ctx, false, false, func(stores *bootstrap.Stores) error {
		job, err := stores.Jobs.GetByID(ctx, opts.JobID)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(os.Stdout, job)
		}
		return printJob(os.Stdout, job)
	})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("status", args)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(opts.Timeout)
	defer cancel()

	return cmdCtx.withStores(ctx, true, false, func(stores *bootstrap.Stores) error {
		update, err := stores.Status.Get(ctx, opts.JobID)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(os.Stdout, update)
		}
		return printStatus(os.Stdout, update)
	})
}

func runRenotify(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("renotify", args)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.withTimeout(opts.Timeout)
	defer cancel()

	svc, cleanup, err := bootstrap.BuildServices(ctx, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	observed, err := svc.Stores.Jobs.CompletionStatus(ctx, opts.JobID)
	if err != nil {
		return err
	}
	if !observed.Terminal() {
		return writef(os.Stdout, "job %s is %s; nothing to publish\n", opts.JobID, observed)
	}

	published, err := svc.Handlers.Notifier.Notify(ctx, opts.JobID, observed)
	if err != nil {
		return err
	}
	return printRenotify(os.Stdout, opts.JobID, observed, published)
}
