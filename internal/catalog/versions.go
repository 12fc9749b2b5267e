package catalog

import (
	"context"
	"fmt"
)

// NextVersion issues the next version number for name: the counter is
// created at 0 on first use, incremented, and the new value returned, all in
// one committed transaction.
//
// The counter is committed before any blob is written, so a crash later in
// the invocation can waste a version number but never reuse one.
func (c *Catalog) NextVersion(ctx context.Context, name string) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next version: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (name, version) VALUES (?, 0)
		ON CONFLICT(name) DO NOTHING
	`, name); err != nil {
		return 0, fmt.Errorf("next version %s: init counter: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE versions SET version = version + 1 WHERE name = ?`, name,
	); err != nil {
		return 0, fmt.Errorf("next version %s: increment: %w", name, err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM versions WHERE name = ?`, name,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("next version %s: read counter: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("next version: commit: %w", err)
	}
	return version, nil
}

// CurrentVersion returns the highest version issued for name, or 0 if none.
func (c *Catalog) CurrentVersion(ctx context.Context, name string) (int64, error) {
	var version int64
	err := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM versions WHERE name = ?
	`, name).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("current version %s: %w", name, err)
	}
	return version, nil
}
