package testutil

import (
	"bytes"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// RandomBytes returns size pseudo-random bytes derived from seed. The same
// seed always yields the same bytes.
func RandomBytes(size int64, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buf := make([]byte, size)
	for i := 0; i+8 <= len(buf); i += 8 {
		v := rng.Uint64()
		for j := 0; j < 8; j++ {
			buf[i+j] = byte(v >> (8 * j))
		}
	}
	for i := len(buf) &^ 7; i < len(buf); i++ {
		buf[i] = byte(rng.Uint32())
	}
	return buf
}

// WriteRandomFile writes RandomBytes(size, seed) to path. The content is
// incompressible, so a gzip blob of it is roughly size bytes.
func WriteRandomFile(t testing.TB, path string, size int64, seed uint64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, RandomBytes(size, seed), 0o644))
}

// WriteTree creates files under dir from a relative-path → content map.
// Keys ending in "/" create empty directories.
func WriteTree(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// TreeEntry describes one filesystem entry for comparison.
type TreeEntry struct {
	Path    string
	Mode    fs.FileMode
	Content []byte
	Link    string
}

// ReadTree walks root and returns its entries sorted by path, relative to
// root. The root itself is listed as ".".
func ReadTree(t testing.TB, root string) []TreeEntry {
	t.Helper()
	var entries []TreeEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		e := TreeEntry{Path: filepath.ToSlash(rel), Mode: info.Mode().Type() | info.Mode().Perm()}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			e.Link, err = os.Readlink(p)
		case info.Mode().IsRegular():
			e.Content, err = os.ReadFile(p)
		}
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// RequireSameTree fails unless both trees have the same paths, types,
// permissions, symlink targets and file bytes.
func RequireSameTree(t testing.TB, want, got string) {
	t.Helper()
	a, b := ReadTree(t, want), ReadTree(t, got)
	require.Equal(t, len(a), len(b), "entry count differs")
	for i := range a {
		require.Equal(t, a[i].Path, b[i].Path)
		require.Equal(t, a[i].Mode, b[i].Mode, "mode of %s", a[i].Path)
		require.Equal(t, a[i].Link, b[i].Link, "link of %s", a[i].Path)
		require.True(t, bytes.Equal(a[i].Content, b[i].Content), "content of %s", a[i].Path)
	}
}

// ListDir returns the sorted entry names directly under dir.
func ListDir(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
