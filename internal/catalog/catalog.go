package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/roach88/archiver/internal/config"
)

// FileName is the catalog file inside the repository root.
const FileName = "meta.db"

// SidecarFiles are files SQLite may create next to the catalog.
var SidecarFiles = []string{FileName + "-journal", FileName + "-wal", FileName + "-shm"}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog is an open catalog database.
type Catalog struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures Open.
type Option func(*Catalog)

// WithClock overrides the time source used for item timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// Open creates or opens the catalog at path, applies pragmas and
// migrations, and makes sure every recognized config key has a value.
//
// Safe to call on every startup.
func Open(ctx context.Context, path string, opts ...Option) (*Catalog, error) {
	// _txlock=immediate takes the write lock at BEGIN so a transaction never
	// has to upgrade halfway through.
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to catalog: %w", err)
	}

	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	c := &Catalog{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.ensureDefaults(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	return c.path
}

// applyPragmas sets connection configuration.
//
// Rollback-journal mode (not WAL) is used so that no sidecar files outlive a
// transaction; the repository root is swept after every invocation.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// migrate applies the embedded schema migrations. Already-applied
// migrations are skipped, so this is idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// ensureDefaults inserts the default value of every recognized key that has
// no row yet. Existing values are left alone.
func (c *Catalog) ensureDefaults(ctx context.Context) error {
	defaults := config.Defaults()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure config defaults: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, key := range config.Keys {
		value, err := defaults.Value(key)
		if err != nil {
			return fmt.Errorf("ensure config defaults: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO config (key, value) VALUES (?, ?)`,
			string(key), value,
		); err != nil {
			return fmt.Errorf("ensure config defaults: %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure config defaults: commit: %w", err)
	}
	return nil
}
