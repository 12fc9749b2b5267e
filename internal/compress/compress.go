// Package compress turns a filesystem path into one opaque blob file and
// back.
//
// The repository core only sees the Compressor interface; TarGzip is the
// default binding.
package compress

import (
	"context"
	"errors"
)

// Compressor produces and extracts blobs.
type Compressor interface {
	// Compress archives sourceDir/baseName into blobPath and returns the blob
	// size in bytes. blobPath must not exist afterwards if an error is
	// returned.
	Compress(ctx context.Context, sourceDir, baseName, blobPath string) (int64, error)

	// Extract unpacks blobPath into targetDir, recreating baseName under it.
	Extract(ctx context.Context, blobPath, targetDir string) error
}

var (
	// ErrUnsafePath indicates an archive entry that would land outside the
	// extraction directory.
	ErrUnsafePath = errors.New("unsafe path in archive")

	// ErrNotDirectory indicates an extraction target that is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)
