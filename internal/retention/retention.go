// Package retention enforces the size budget of a repository root and
// reconciles the root directory against the catalog.
//
// A pass runs after every command, whether or not the command changed
// anything:
//
//  1. Load Archived items oldest first and stat each blob.
//  2. Evict from the oldest end while the total exceeds the budget. The
//     newest item is never evicted, so at least one item stays Archived even
//     if it alone is over budget.
//  3. Commit the evictions as one catalog transaction.
//  4. Sweep the root: remove every entry that is not the catalog, the lock
//     file, or the blob of a retained item. Removal failures are logged and
//     the sweep continues.
//
// The pass re-derives what should exist from the catalog each time, so
// stray files and half-written blobs from a crashed run are cleaned up on
// the next invocation.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/logging"
)

// Catalog is the subset of *catalog.Catalog a pass needs.
type Catalog interface {
	ListArchived(ctx context.Context) ([]catalog.Item, error)
	Settings(ctx context.Context) (config.Settings, error)
	MarkDeleted(ctx context.Context, archives []string) error
}

// Engine runs retention passes over one root.
type Engine struct {
	Root    string
	Catalog Catalog
	Logger  *slog.Logger

	// Protected names are never swept, in addition to retained blobs.
	Protected []string
}

// Result summarizes one pass.
type Result struct {
	// TotalSize is the summed size of retained blobs after eviction.
	TotalSize int64
	Limit     int64

	Evicted  []catalog.Item
	Retained []catalog.Item

	// Missing lists archives of Archived items with no blob on disk. They
	// count as zero bytes.
	Missing []string

	// Removed lists root entries deleted by the sweep.
	Removed []string

	// SweepErrors holds the removal failures that were logged and skipped.
	SweepErrors []error
}

// Reconcile runs one full pass.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	logger := logging.OrNop(e.Logger)

	items, err := e.Catalog.ListArchived(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("retention: %w", err)
	}

	var res Result
	sizes := make([]int64, len(items))
	var total int64
	for i, item := range items {
		size, err := blobSize(filepath.Join(e.Root, item.Archive))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("archived item has no blob; counting it as zero bytes",
				"name", item.Name, "version", item.Version, "archive", item.Archive)
			res.Missing = append(res.Missing, item.Archive)
		case err != nil:
			return Result{}, fmt.Errorf("retention: stat %s: %w", item.Archive, err)
		}
		logger.Debug("blob size", "archive", item.Archive, "size", size)
		sizes[i] = size
		total += size
	}
	logger.Info("total size of archived blobs", "size", total, "items", len(items))

	settings, err := e.Catalog.Settings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("retention: %w", err)
	}
	res.Limit = settings.Size

	n, remaining := Plan(sizes, settings.Size)
	res.Evicted = items[:n]
	res.Retained = items[n:]
	res.TotalSize = remaining

	if n > 0 {
		archives := make([]string, n)
		for i, item := range res.Evicted {
			logger.Info("evicting item to respect size limit",
				"archive", item.Archive, "size", sizes[i], "limit", settings.Size)
			archives[i] = item.Archive
		}
		if err := e.Catalog.MarkDeleted(ctx, archives); err != nil {
			return Result{}, fmt.Errorf("retention: %w", err)
		}
	}
	if remaining > settings.Size {
		logger.Warn("newest item alone exceeds size limit",
			"archive", res.Retained[len(res.Retained)-1].Archive, "size", remaining, "limit", settings.Size)
	}

	keep := make(map[string]struct{}, len(e.Protected)+len(res.Retained))
	for _, name := range e.Protected {
		keep[name] = struct{}{}
	}
	for _, item := range res.Retained {
		keep[item.Archive] = struct{}{}
	}

	removed, sweepErrs, err := Sweep(e.Root, keep, logger)
	if err != nil {
		return Result{}, fmt.Errorf("retention: %w", err)
	}
	res.Removed = removed
	res.SweepErrors = sweepErrs
	return res, nil
}

// Plan returns how many of the oldest entries to evict so that the rest fit
// in limit, and the total size of what remains. sizes must be ordered
// oldest first. The last entry is never evicted.
func Plan(sizes []int64, limit int64) (evict int, remaining int64) {
	for _, s := range sizes {
		remaining += s
	}
	for evict < len(sizes)-1 && remaining > limit {
		remaining -= sizes[evict]
		evict++
	}
	return evict, remaining
}

func blobSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sweep removes every entry directly under root whose name is not in keep.
// Files and directories are removed alike. A failed removal is logged and
// collected; only failing to list root is returned as an error.
func Sweep(root string, keep map[string]struct{}, logger *slog.Logger) (removed []string, errs []error, err error) {
	logger = logging.OrNop(logger)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("sweep %s: %w", root, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if _, ok := keep[name]; ok {
			continue
		}
		p := filepath.Join(root, name)
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		logger.Info("deleting untracked "+kind, "path", p)
		if err := os.RemoveAll(p); err != nil {
			logger.Error("failed to clean up", "path", p, "error", err)
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		removed = append(removed, name)
	}
	return removed, errs, nil
}
