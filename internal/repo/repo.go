// Package repo is the repository facade: archive, restore, list and
// configure, each run inside a locked session that ends with a retention
// pass.
//
// A session follows a fixed sequence:
//
//	acquire lock → open catalog → run one operation → reconcile → release
//
// A failing operation aborts the session before reconciliation. Operations
// never write outside the lock.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/compress"
	"github.com/roach88/archiver/internal/lock"
	"github.com/roach88/archiver/internal/logging"
	"github.com/roach88/archiver/internal/retention"
)

var (
	// ErrNotFound indicates no Archived item matches a restore request.
	ErrNotFound = errors.New("no archived item")

	// ErrAmbiguous indicates a restore request matching several versions.
	ErrAmbiguous = errors.New("ambiguous item name")

	// ErrCompress indicates the compressor failed to produce a blob.
	ErrCompress = errors.New("compression failed")

	// ErrInvalidSource indicates a source path that cannot be archived.
	ErrInvalidSource = errors.New("invalid source")
)

// Options configures a Repository.
type Options struct {
	Logger *slog.Logger

	// Compressor defaults to compress.TarGzip.
	Compressor compress.Compressor

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Repository is an open, locked repository root.
type Repository struct {
	root       string
	lock       *lock.Lock
	cat        *catalog.Catalog
	compressor compress.Compressor
	logger     *slog.Logger
	retention  *retention.Engine
}

// Open acquires the root's lock, blocking until it is free, and then opens
// the catalog. The root directory must already exist.
func Open(ctx context.Context, root string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	logger := logging.OrNop(opts.Logger).With("root", abs)

	lk, err := lock.Acquire(abs, logger)
	if err != nil {
		return nil, err
	}

	var catOpts []catalog.Option
	if opts.Clock != nil {
		catOpts = append(catOpts, catalog.WithClock(opts.Clock))
	}
	cat, err := catalog.Open(ctx, filepath.Join(abs, catalog.FileName), catOpts...)
	if err != nil {
		lk.Release()
		return nil, err
	}

	comp := opts.Compressor
	if comp == nil {
		comp = compress.TarGzip{Logger: logger}
	}

	protected := append([]string{catalog.FileName, lock.FileName}, catalog.SidecarFiles...)
	return &Repository{
		root:       abs,
		lock:       lk,
		cat:        cat,
		compressor: comp,
		logger:     logger,
		retention: &retention.Engine{
			Root:      abs,
			Catalog:   cat,
			Logger:    logger,
			Protected: protected,
		},
	}, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string {
	return r.root
}

// Close closes the catalog and releases the lock.
func (r *Repository) Close() error {
	catErr := r.cat.Close()
	lockErr := r.lock.Release()
	return errors.Join(catErr, lockErr)
}

// Reconcile runs a retention pass.
func (r *Repository) Reconcile(ctx context.Context) (retention.Result, error) {
	return r.retention.Reconcile(ctx)
}

// Run opens root, calls fn, reconciles and closes. Reconciliation runs after
// every successful fn, whether or not it changed anything; a failing fn
// skips it.
func Run(ctx context.Context, root string, opts Options, fn func(context.Context, *Repository) error) (retention.Result, error) {
	r, err := Open(ctx, root, opts)
	if err != nil {
		return retention.Result{}, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			r.logger.Error("error closing repository", "error", cerr)
		}
	}()

	if err := fn(ctx, r); err != nil {
		return retention.Result{}, err
	}

	res, err := r.Reconcile(ctx)
	if err != nil {
		return retention.Result{}, err
	}
	if len(res.Evicted) > 0 || len(res.Removed) > 0 {
		r.logger.Info("reconciled repository",
			"evicted", len(res.Evicted), "removed", len(res.Removed), "total_size", res.TotalSize)
	}
	return res, nil
}
