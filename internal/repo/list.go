package repo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/config"
)

// List returns every item, whatever its status, oldest first. A non-nil
// pattern keeps only items whose name it matches anywhere.
func (r *Repository) List(ctx context.Context, pattern *regexp.Regexp) ([]catalog.Item, error) {
	items, err := r.cat.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	if pattern == nil {
		return items, nil
	}

	out := items[:0]
	for _, item := range items {
		if pattern.MatchString(item.Name) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Config returns the stored value of key.
func (r *Repository) Config(ctx context.Context, key config.Key) (string, error) {
	return r.cat.Setting(ctx, key)
}

// Settings returns every recognized setting.
func (r *Repository) Settings(ctx context.Context) (config.Settings, error) {
	return r.cat.Settings(ctx)
}

// SetConfig validates raw and stores it under key, returning the value as
// stored.
func (r *Repository) SetConfig(ctx context.Context, key config.Key, raw string) (string, error) {
	settings, err := r.cat.SetSetting(ctx, key, raw)
	if err != nil {
		return "", err
	}
	value, err := settings.Value(key)
	if err != nil {
		return "", err
	}
	r.logger.Info("updated config", "key", string(key), "value", value)
	return value, nil
}
