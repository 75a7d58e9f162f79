package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/itinerary/config"
	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/data"
	"github.com/target/itinerary/internal/data/mongostore"
	"github.com/target/itinerary/internal/data/sqlitestore"
)

// StoreOptions contains configuration for OpenStores.
type StoreOptions struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// Migrate forces schema migrations regardless of DB_RUN_MIGRATIONS_ON_START.
	Migrate bool
}

// Stores holds the job repository selected by STORE_DRIVER and the optional Redis status mirror.
type Stores struct {
	Jobs   core.JobRepository
	Status core.StatusStore // nil when the status mirror is disabled

	closers []func(context.Context) error
}

// OpenStores connects the configured job store and status mirror. On error every
// connection opened so far is closed.
func OpenStores(ctx context.Context, opts StoreOptions) (*Stores, error) {
	if opts.Config == nil {
		return nil, errors.New("store config is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := DatabaseConfig{
		DBConfig:     cfg.Postgres,
		SQLiteConfig: cfg.SQLite,
		MongoConfig:  cfg.Mongo,
		RedisConfig:  cfg.Redis,
		Logger:       logger,
	}
	repoCfg := data.RepoConfig{Logger: logger}
	s := &Stores{}

	var err error
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		err = s.openSQLite(ctx, dbCfg, repoCfg)
	case config.StoreDriverMongo:
		err = s.openMongo(ctx, dbCfg, repoCfg)
	default:
		err = s.openPostgres(ctx, dbCfg, repoCfg, opts.Migrate || cfg.Postgres.RunMigrationsOnStart)
	}
	if err != nil {
		return nil, errors.Join(err, s.Close(context.WithoutCancel(ctx)))
	}

	if cfg.Redis.Enabled {
		client, redisErr := ConnectRedis(dbCfg)
		if redisErr != nil {
			return nil, errors.Join(fmt.Errorf("connect status store: %w", redisErr), s.Close(context.WithoutCancel(ctx)))
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		s.Status = data.NewRedisStatusStore(client, data.RedisStatusStoreOptions{
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.State.StatusTTL,
		})
	} else {
		logger.InfoContext(ctx, "redis status mirror disabled")
	}

	return s, nil
}

func (s *Stores) openPostgres(ctx context.Context, dbCfg DatabaseConfig, repoCfg data.RepoConfig, migrate bool) error {
	db, err := ConnectDB(dbCfg)
	if err != nil {
		return fmt.Errorf("connect postgres job store: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return db.Close() })
	if migrate {
		if err := RunMigrations(ctx, db, dbCfg.Logger); err != nil {
			return err
		}
	}
	s.Jobs = data.NewJobRepo(db, repoCfg)
	return nil
}

func (s *Stores) openSQLite(ctx context.Context, dbCfg DatabaseConfig, repoCfg data.RepoConfig) error {
	db, err := OpenSQLite(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open sqlite job store: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return db.Close() })
	s.Jobs = sqlitestore.NewJobRepo(db, repoCfg)
	return nil
}

func (s *Stores) openMongo(ctx context.Context, dbCfg DatabaseConfig, repoCfg data.RepoConfig) error {
	client, err := ConnectMongo(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect mongo job store: %w", err)
	}
	s.closers = append(s.closers, client.Disconnect)
	coll := client.Database(dbCfg.MongoConfig.Database).Collection(dbCfg.MongoConfig.Collection)
	repo := mongostore.NewJobRepo(coll, repoCfg)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}
	s.Jobs = repo
	return nil
}

// Close releases every connection in reverse order of opening.
func (s *Stores) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
