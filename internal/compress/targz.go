package compress

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TarGzip writes gzip-compressed tar blobs. Entry names are relative to the
// source's parent, so every entry starts with the source's base name.
type TarGzip struct {
	// Level is the gzip level; 0 selects gzip.DefaultCompression.
	Level  int
	Logger *slog.Logger
}

var _ Compressor = TarGzip{}

func (z TarGzip) logger() *slog.Logger {
	if z.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return z.Logger
}

// Compress writes the blob under a temporary name next to blobPath and
// renames it into place only once it is complete.
func (z TarGzip) Compress(ctx context.Context, sourceDir, baseName, blobPath string) (size int64, err error) {
	src := filepath.Join(sourceDir, baseName)
	if _, err := os.Lstat(src); err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(blobPath),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(blobPath), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	level := z.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	gz, err := gzip.NewWriterLevel(f, level)
	if err != nil {
		return 0, fmt.Errorf("create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return z.writeEntry(tw, sourceDir, p, d)
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", src, err)
	}

	if err = tw.Close(); err != nil {
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err = gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}
	if err = f.Sync(); err != nil {
		return 0, fmt.Errorf("sync blob: %w", err)
	}
	if err = f.Close(); err != nil {
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err = os.Rename(tmp, blobPath); err != nil {
		return 0, fmt.Errorf("rename blob: %w", err)
	}

	info, err := os.Stat(blobPath)
	if err != nil {
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}

func (z TarGzip) writeEntry(tw *tar.Writer, sourceDir, p string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		z.logger().Warn("skipping special file", "path", p, "mode", info.Mode().String())
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(sourceDir, p)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(tw, in)
	return err
}

// Extract unpacks blobPath into targetDir, which must already exist.
// Entries that would resolve outside targetDir are rejected.
//
// Directories stay owner-writable while their children are written; their
// archived modes and times are applied once the whole stream has been read,
// deepest first.
func (z TarGzip) Extract(ctx context.Context, blobPath, targetDir string) error {
	info, err := os.Stat(targetDir)
	if err != nil {
		return fmt.Errorf("extract target: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("extract target %s: %w", targetDir, ErrNotDirectory)
	}
	root, err := filepath.EvalSymlinks(targetDir)
	if err != nil {
		return fmt.Errorf("extract target: %w", err)
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read gzip: %w", err)
	}
	defer gz.Close()

	x := &extractor{root: root, logger: z.logger()}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.entry(hdr, tr); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}
	return x.finishDirs()
}

// pendingDir is a directory whose archived mode and time are applied after
// its children exist.
type pendingDir struct {
	path    string
	perm    fs.FileMode
	modTime time.Time
}

type extractor struct {
	root   string
	logger *slog.Logger
	dirs   []pendingDir
}

func (x *extractor) entry(hdr *tar.Header, r io.Reader) error {
	target, err := safeJoin(x.root, hdr.Name)
	if err != nil {
		return err
	}
	perm := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := mkdirUnder(x.root, target); err != nil {
			return err
		}
		// An existing read-only directory must accept children too.
		if err := os.Chmod(target, perm|0o700); err != nil {
			return err
		}
		x.dirs = append(x.dirs, pendingDir{path: target, perm: perm, modTime: hdr.ModTime})
		return nil

	case tar.TypeReg:
		if err := mkdirUnder(x.root, filepath.Dir(target)); err != nil {
			return err
		}
		if err := removeExisting(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0o200)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		if err := os.Chmod(target, perm); err != nil {
			return err
		}
		return os.Chtimes(target, hdr.ModTime, hdr.ModTime)

	case tar.TypeSymlink:
		if err := mkdirUnder(x.root, filepath.Dir(target)); err != nil {
			return err
		}
		if err := removeExisting(target); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)

	default:
		x.logger.Warn("skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		return nil
	}
}

// finishDirs applies directory modes and times in reverse order, so that a
// read-only parent is locked only after its children are done.
func (x *extractor) finishDirs() error {
	for i := len(x.dirs) - 1; i >= 0; i-- {
		d := x.dirs[i]
		if err := os.Chmod(d.path, d.perm); err != nil {
			return fmt.Errorf("set mode of %s: %w", d.path, err)
		}
		if err := os.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			return fmt.Errorf("set times of %s: %w", d.path, err)
		}
	}
	return nil
}

// safeJoin resolves an archive entry name under root.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(root, clean), nil
}

// mkdirUnder creates dir and its missing parents once the nearest existing
// ancestor is known to resolve inside root. Components created here are
// real directories, so nothing can be created through a symlink.
func mkdirUnder(root, dir string) error {
	if err := checkWithin(root, dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// checkWithin rejects p when its nearest existing ancestor, p included,
// resolves through symlinks written by earlier entries to somewhere outside
// root.
func checkWithin(root, p string) error {
	existing := p
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		next := filepath.Dir(existing)
		if next == existing {
			return fmt.Errorf("%w: %s has no existing ancestor", ErrUnsafePath, p)
		}
		existing = next
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsafePath, existing, err)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s resolves outside %s", ErrUnsafePath, p, root)
	}
	return nil
}

// removeExisting unlinks a file or symlink at p so that it is replaced, not
// written through. Directories are left for the caller to fail on.
func removeExisting(p string) error {
	info, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	return os.Remove(p)
}
