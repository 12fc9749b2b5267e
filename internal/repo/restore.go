package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/compress"
)

// RestoreRequest selects one Archived item and where to unpack it.
type RestoreRequest struct {
	Name string

	// Version is optional; nil matches every version of Name.
	Version *int64

	// Directory defaults to the parent of the item's recorded source.
	Directory string
}

// Restored describes a finished restore attempt.
type Restored struct {
	catalog.Item

	// Directory is the absolute directory the blob was extracted into.
	Directory string
}

func (q RestoreRequest) describe() string {
	if q.Version == nil {
		return fmt.Sprintf("%q", q.Name)
	}
	return fmt.Sprintf("%q version %d", q.Name, *q.Version)
}

// Restore extracts exactly one Archived item. The item ends up Restored when
// extraction succeeds and Corrupted when it fails; a failed extraction is
// logged and reported through the returned item's status, not as an error.
func (r *Repository) Restore(ctx context.Context, req RestoreRequest) (Restored, error) {
	req.Name = catalog.NormalizeName(req.Name)

	matches, err := r.cat.FindArchived(ctx, req.Name, req.Version)
	if err != nil {
		return Restored{}, fmt.Errorf("restore: %w", err)
	}
	switch len(matches) {
	case 0:
		return Restored{}, fmt.Errorf("%w named %s", ErrNotFound, req.describe())
	case 1:
	default:
		versions := make([]int64, len(matches))
		for i, m := range matches {
			versions[i] = m.Version
		}
		return Restored{}, fmt.Errorf("%w %s: versions %v are archived; pick one with --version",
			ErrAmbiguous, req.describe(), versions)
	}
	item := matches[0]

	target := req.Directory
	if target == "" {
		target = filepath.Dir(item.Source)
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return Restored{}, fmt.Errorf("restore: resolve %s: %w", req.Directory, err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return Restored{}, fmt.Errorf("restore: target directory: %w", err)
	}
	if !info.IsDir() {
		return Restored{}, fmt.Errorf("restore: target %s: %w", target, compress.ErrNotDirectory)
	}

	r.logger.Info("restoring", "archive", item.Archive, "target", target)
	status := catalog.StatusRestored
	if err := r.compressor.Extract(ctx, filepath.Join(r.root, item.Archive), target); err != nil {
		r.logger.Error("extraction failed; marking item corrupted",
			"name", item.Name, "version", item.Version, "archive", item.Archive, "error", err)
		status = catalog.StatusCorrupted
	}

	if err := r.cat.MarkStatus(ctx, item.Name, item.Version, status); err != nil {
		return Restored{}, fmt.Errorf("restore: %w", err)
	}
	item.Status = status
	return Restored{Item: item, Directory: target}, nil
}
