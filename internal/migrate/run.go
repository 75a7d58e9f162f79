package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect carries the bookkeeping statements for one SQL engine.
type Dialect struct {
	Name        string
	Dir         string
	CreateTable string
	ExistsQuery string
	InsertQuery string
}

// Postgres is the dialect of the primary job store.
var Postgres = Dialect{
	Name: "postgres",
	Dir:  "migrations/postgres",
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	ExistsQuery: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
	InsertQuery: `INSERT INTO schema_migrations (version) VALUES ($1)`,
}

// SQLite is the dialect of the embedded job store.
var SQLite = Dialect{
	Name: "sqlite",
	Dir:  "migrations/sqlite",
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER) * 1000)
		)`,
	ExistsQuery: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`,
	InsertQuery: `INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`,
}

// Run applies the embedded Postgres migrations. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	return Apply(ctx, db, Postgres)
}

// RunSQLite applies the embedded SQLite migrations. It is safe to call multiple times.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	return Apply(ctx, db, SQLite)
}

// Apply runs every not-yet-applied migration of the dialect, each in its own transaction.
func Apply(ctx context.Context, db *sql.DB, d Dialect) error {
	if db == nil {
		return errors.New("migrate: db is required")
	}
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := migrationFiles(migrationsFS, d.Dir)
	if err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations", "dialect", d.Name)
	for _, f := range files {
		info := migrationInfo{versionStr: strings.TrimSuffix(f, ".sql"), file: f}
		if applyErr := applyMigration(ctx, db, d, info, logger); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

type migrationInfo struct {
	versionStr string
	file       string
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down", or the whole file without markers.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	body := content[start+len(up):]
	if end := strings.Index(body, down); end != -1 {
		body = body[:end]
	}
	return body
}

func applyMigration(ctx context.Context, db *sql.DB, d Dialect, info migrationInfo, logger *slog.Logger) error {
	var exists bool
	if err := db.QueryRowContext(ctx, d.ExistsQuery, info.versionStr).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", info.file, err)
	}
	if exists {
		return nil
	}

	raw, err := migrationsFS.ReadFile(d.Dir + "/" + info.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", info.file, err)
	}
	stmt := upSection(string(raw))
	if strings.TrimSpace(stmt) == "" {
		return nil
	}

	logger.InfoContext(ctx, "applying migration", "version", info.versionStr)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", info.file)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", info.file, execErr)
	}
	if _, insertErr := tx.ExecContext(ctx, d.InsertQuery, info.versionStr); insertErr != nil {
		return fmt.Errorf("record migration %s: %w", info.file, insertErr)
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", info.file, commitErr)
	}
	return nil
}
