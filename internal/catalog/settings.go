package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/archiver/internal/config"
)

// Setting returns the stored text value of key.
func (c *Catalog) Setting(ctx context.Context, key config.Key) (string, error) {
	if _, err := config.ParseKey(string(key)); err != nil {
		return "", err
	}

	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %q not found in config table", key)
	}
	if err != nil {
		return "", fmt.Errorf("read config %s: %w", key, err)
	}
	return value, nil
}

// Settings loads every recognized key into a typed Settings value.
func (c *Catalog) Settings(ctx context.Context) (config.Settings, error) {
	var s config.Settings
	for _, key := range config.Keys {
		raw, err := c.Setting(ctx, key)
		if err != nil {
			return config.Settings{}, err
		}
		if err := s.Load(key, raw); err != nil {
			return config.Settings{}, fmt.Errorf("config %s: %w", key, err)
		}
	}
	return s, nil
}

// SetSetting validates raw user input for key and stores it.
func (c *Catalog) SetSetting(ctx context.Context, key config.Key, raw string) (config.Settings, error) {
	current, err := c.Settings(ctx)
	if err != nil {
		return config.Settings{}, err
	}
	if err := current.Set(key, raw); err != nil {
		return config.Settings{}, err
	}
	value, err := current.Value(key)
	if err != nil {
		return config.Settings{}, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return config.Settings{}, fmt.Errorf("write config: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE config SET value = ? WHERE key = ?`, value, string(key),
	); err != nil {
		return config.Settings{}, fmt.Errorf("write config %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return config.Settings{}, fmt.Errorf("write config: commit: %w", err)
	}
	return current, nil
}
