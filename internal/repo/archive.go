package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/archiver/internal/catalog"
)

// Archive compresses source into a new versioned blob under the root and
// records it as Archived.
//
// The version is issued and committed before the blob is written, so a crash
// in between wastes a version number but never reuses one. No item row is
// written unless the blob exists.
func (r *Repository) Archive(ctx context.Context, source string) (catalog.Item, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return catalog.Item{}, fmt.Errorf("archive: resolve %s: %w", source, err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return catalog.Item{}, fmt.Errorf("archive: %w: %w", ErrInvalidSource, err)
	}
	if within(r.root, abs) {
		return catalog.Item{}, fmt.Errorf("archive: %w: %s is inside the repository root", ErrInvalidSource, abs)
	}
	if within(abs, r.root) {
		return catalog.Item{}, fmt.Errorf("archive: %w: %s contains the repository root", ErrInvalidSource, abs)
	}

	dir, base := filepath.Split(abs)
	if base == "" {
		return catalog.Item{}, fmt.Errorf("archive: %w: %s has no base name", ErrInvalidSource, abs)
	}
	name := catalog.NormalizeName(base)

	version, err := r.cat.NextVersion(ctx, name)
	if err != nil {
		return catalog.Item{}, fmt.Errorf("archive: %w", err)
	}
	archive := catalog.ArchiveName(name, version)
	r.logger.Debug("issued version", "name", name, "version", version)

	r.logger.Info("compressing", "source", abs, "archive", archive)
	size, err := r.compressor.Compress(ctx, filepath.Clean(dir), base, filepath.Join(r.root, archive))
	if err != nil {
		r.logger.Error("compression failed", "source", abs, "archive", archive, "error", err)
		return catalog.Item{}, fmt.Errorf("archive %s: %w: %w", abs, ErrCompress, err)
	}

	item, err := r.cat.InsertItem(ctx, catalog.NewItem{
		Name:    name,
		Version: version,
		Source:  abs,
		Archive: archive,
		Size:    size,
	})
	if err != nil {
		return catalog.Item{}, fmt.Errorf("archive: %w", err)
	}
	r.logger.Info("archived item", "name", item.Name, "version", item.Version, "size", item.Size)
	return item, nil
}

// within reports whether p is root or lies below it.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
