package compress

import (
	"archive/tar"
	"compress/gzip"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archiver/internal/testutil"
)

func TestTarGzipRoundTripDirectory(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, filepath.Join(src, "photos"), map[string]string{
		"a.txt":            "alpha",
		"nested/b.txt":     "bravo",
		"nested/deep/c.md": "# charlie\n",
		"empty/":           "",
	})
	testutil.WriteRandomFile(t, filepath.Join(src, "photos", "raw.bin"), 64<<10, 7)
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "photos", "link")))

	repo := t.TempDir()
	blob := filepath.Join(repo, "photos-1.tar.gz")
	z := TarGzip{}

	size, err := z.Compress(t.Context(), src, "photos", blob)
	require.NoError(t, err)
	info, err := os.Stat(blob)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), size)
	assert.Equal(t, []string{"photos-1.tar.gz"}, testutil.ListDir(t, repo), "no temp files left behind")

	dst := t.TempDir()
	require.NoError(t, z.Extract(t.Context(), blob, dst))
	testutil.RequireSameTree(t, filepath.Join(src, "photos"), filepath.Join(dst, "photos"))
}

func TestTarGzipRoundTripSingleFile(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"notes.txt": "hello"})

	blob := filepath.Join(t.TempDir(), "notes.txt-1.tar.gz")
	z := TarGzip{Level: gzip.BestSpeed}
	_, err := z.Compress(t.Context(), src, "notes.txt", blob)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, z.Extract(t.Context(), blob, dst))
	got, err := os.ReadFile(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestTarGzipExtractOverwrites(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"notes.txt": "fresh"})
	blob := filepath.Join(t.TempDir(), "notes.txt-1.tar.gz")
	z := TarGzip{}
	_, err := z.Compress(t.Context(), src, "notes.txt", blob)
	require.NoError(t, err)

	dst := t.TempDir()
	testutil.WriteTree(t, dst, map[string]string{"notes.txt": "stale content that is longer"})
	require.NoError(t, z.Extract(t.Context(), blob, dst))

	got, err := os.ReadFile(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

// makeWritable restores owner write access below dir so the temp dir can be
// removed.
func makeWritable(t *testing.T, dir string) {
	t.Helper()
	t.Cleanup(func() {
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				_ = os.Chmod(p, 0o755)
			}
			return nil
		})
	})
}

func TestTarGzipRoundTripReadOnlyDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	src := t.TempDir()
	makeWritable(t, src)
	testutil.WriteTree(t, filepath.Join(src, "proj"), map[string]string{
		"f.txt":     "frozen",
		"sub/g.txt": "also frozen",
	})
	require.NoError(t, os.Chmod(filepath.Join(src, "proj", "sub"), 0o555))
	require.NoError(t, os.Chmod(filepath.Join(src, "proj"), 0o555))

	blob := filepath.Join(t.TempDir(), "proj-1.tar.gz")
	z := TarGzip{}
	_, err := z.Compress(t.Context(), src, "proj", blob)
	require.NoError(t, err)

	dst := t.TempDir()
	makeWritable(t, dst)
	require.NoError(t, z.Extract(t.Context(), blob, dst))

	got, err := os.ReadFile(filepath.Join(dst, "proj", "sub", "g.txt"))
	require.NoError(t, err)
	assert.Equal(t, "also frozen", string(got))
	assert.FileExists(t, filepath.Join(dst, "proj", "f.txt"))
	for _, dir := range []string{"proj", "proj/sub"} {
		info, err := os.Stat(filepath.Join(dst, dir))
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o555), info.Mode().Perm(), dir)
	}
}

func TestTarGzipExtractReplacesReadOnlyFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"notes.txt": "fresh"})
	blob := filepath.Join(t.TempDir(), "notes.txt-1.tar.gz")
	z := TarGzip{}
	_, err := z.Compress(t.Context(), src, "notes.txt", blob)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "notes.txt"), []byte("stale"), 0o444))
	require.NoError(t, z.Extract(t.Context(), blob, dst))

	got, err := os.ReadFile(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestTarGzipExtractReplacesSymlinkedFile(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"notes.txt": "fresh"})
	blob := filepath.Join(t.TempDir(), "notes.txt-1.tar.gz")
	z := TarGzip{}
	_, err := z.Compress(t.Context(), src, "notes.txt", blob)
	require.NoError(t, err)

	victim := filepath.Join(t.TempDir(), "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("untouched"), 0o644))
	dst := t.TempDir()
	require.NoError(t, os.Symlink(victim, filepath.Join(dst, "notes.txt")))
	require.NoError(t, z.Extract(t.Context(), blob, dst))

	got, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "untouched", string(got))
	info, err := os.Lstat(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestTarGzipCompressMissingSource(t *testing.T) {
	repo := t.TempDir()
	_, err := TarGzip{}.Compress(t.Context(), t.TempDir(), "absent", filepath.Join(repo, "absent-1.tar.gz"))
	require.Error(t, err)
	assert.Empty(t, testutil.ListDir(t, repo))
}

func TestTarGzipExtractTargetMustBeDirectory(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"f": "x"})
	blob := filepath.Join(t.TempDir(), "f-1.tar.gz")
	_, err := TarGzip{}.Compress(t.Context(), src, "f", blob)
	require.NoError(t, err)

	err = TarGzip{}.Extract(t.Context(), blob, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	err = TarGzip{}.Extract(t.Context(), blob, file)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestTarGzipExtractCorruptBlob(t *testing.T) {
	blob := filepath.Join(t.TempDir(), "bad-1.tar.gz")
	require.NoError(t, os.WriteFile(blob, []byte("not gzip at all"), 0o644))

	err := TarGzip{}.Extract(t.Context(), blob, t.TempDir())
	assert.Error(t, err)
}

// writeRawBlob builds a blob from hand-made headers, bypassing Compress.
func writeRawBlob(t *testing.T, path string, hdrs []*tar.Header, bodies []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for i, h := range hdrs {
		require.NoError(t, tw.WriteHeader(h))
		if bodies[i] != "" {
			_, err := tw.Write([]byte(bodies[i]))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestTarGzipExtractRejectsTraversal(t *testing.T) {
	blob := filepath.Join(t.TempDir(), "evil-1.tar.gz")
	writeRawBlob(t, blob, []*tar.Header{
		{Name: "../escape.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	}, []string{"evil"})

	parent := t.TempDir()
	dst := filepath.Join(parent, "dst")
	require.NoError(t, os.Mkdir(dst, 0o755))

	err := TarGzip{}.Extract(t.Context(), blob, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
}

func TestTarGzipExtractRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	blob := filepath.Join(t.TempDir(), "evil-2.tar.gz")
	writeRawBlob(t, blob, []*tar.Header{
		{Name: "evil/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "evil/out", Typeflag: tar.TypeSymlink, Linkname: outside, Mode: 0o777},
		{Name: "evil/out/pwned.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	}, []string{"", "", "evil"})

	err := TarGzip{}.Extract(t.Context(), blob, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(outside, "pwned.txt"))
}

func TestTarGzipExtractSymlinkEscapeCreatesNothingOutside(t *testing.T) {
	outside := t.TempDir()
	blob := filepath.Join(t.TempDir(), "evil-3.tar.gz")
	writeRawBlob(t, blob, []*tar.Header{
		{Name: "a", Typeflag: tar.TypeSymlink, Linkname: outside, Mode: 0o777},
		{Name: "a/x/y", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	}, []string{"", "evil"})

	err := TarGzip{}.Extract(t.Context(), blob, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoDirExists(t, filepath.Join(outside, "x"))
	assert.Empty(t, testutil.ListDir(t, outside))
}

func TestTarGzipExtractDirectoryThroughSymlink(t *testing.T) {
	outside := t.TempDir()
	blob := filepath.Join(t.TempDir(), "evil-4.tar.gz")
	writeRawBlob(t, blob, []*tar.Header{
		{Name: "a", Typeflag: tar.TypeSymlink, Linkname: outside, Mode: 0o777},
		{Name: "a/made/", Typeflag: tar.TypeDir, Mode: 0o755},
	}, []string{"", ""})

	err := TarGzip{}.Extract(t.Context(), blob, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.Empty(t, testutil.ListDir(t, outside))
}

func TestCheckWithin(t *testing.T) {
	root := t.TempDir()
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root, "in"), 0o755))
	require.NoError(t, os.Symlink("in", filepath.Join(root, "inner")))
	require.NoError(t, os.Symlink(t.TempDir(), filepath.Join(root, "out")))
	require.NoError(t, os.Symlink("missing", filepath.Join(root, "dangling")))

	assert.NoError(t, checkWithin(root, root))
	assert.NoError(t, checkWithin(root, filepath.Join(root, "in", "new", "deeper")))
	assert.NoError(t, checkWithin(root, filepath.Join(root, "inner", "new")))
	assert.ErrorIs(t, checkWithin(root, filepath.Join(root, "out", "new")), ErrUnsafePath)
	assert.ErrorIs(t, checkWithin(root, filepath.Join(root, "dangling", "new")), ErrUnsafePath)
}

func TestSafeJoin(t *testing.T) {
	got, err := safeJoin("/root", "a/b/../c")
	require.NoError(t, err)
	assert.Equal(t, "/root/a/c", got)

	for _, bad := range []string{"/etc/passwd", "..", "../x", "a/../../x"} {
		_, err := safeJoin("/root", bad)
		assert.ErrorIs(t, err, ErrUnsafePath, bad)
	}
}
