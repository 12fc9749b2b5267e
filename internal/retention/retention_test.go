package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/lock"
	"github.com/roach88/archiver/internal/logging"
	"github.com/roach88/archiver/internal/testutil"
)

type fixture struct {
	root   string
	cat    *catalog.Catalog
	engine *Engine
	rec    *logging.Recorder
}

func newFixture(t *testing.T, limit string) *fixture {
	t.Helper()
	root := t.TempDir()
	clock := testutil.NewDeterministicClock()
	cat, err := catalog.Open(t.Context(), filepath.Join(root, catalog.FileName), catalog.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	_, err = cat.SetSetting(t.Context(), config.KeySize, limit)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, lock.FileName), nil, 0o644))

	logger, rec := logging.NewRecorder()
	return &fixture{
		root: root,
		cat:  cat,
		rec:  rec,
		engine: &Engine{
			Root:      root,
			Catalog:   cat,
			Logger:    logger,
			Protected: append([]string{catalog.FileName, lock.FileName}, catalog.SidecarFiles...),
		},
	}
}

// add records an Archived item and writes a blob of size bytes for it.
func (f *fixture) add(t *testing.T, name string, size int64) catalog.Item {
	t.Helper()
	v, err := f.cat.NextVersion(t.Context(), name)
	require.NoError(t, err)
	archive := catalog.ArchiveName(name, v)
	testutil.WriteRandomFile(t, filepath.Join(f.root, archive), size, uint64(v))
	item, err := f.cat.InsertItem(t.Context(), catalog.NewItem{
		Name: name, Version: v, Source: "/src/" + name, Archive: archive, Size: size,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) statuses(t *testing.T) map[string]catalog.Status {
	t.Helper()
	items, err := f.cat.ListItems(t.Context())
	require.NoError(t, err)
	out := make(map[string]catalog.Status, len(items))
	for _, it := range items {
		out[it.Archive] = it.Status
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		sizes         []int64
		limit         int64
		wantEvict     int
		wantRemaining int64
	}{
		{"empty", nil, 10, 0, 0},
		{"under budget", []int64{3, 3}, 10, 0, 6},
		{"exactly at budget", []int64{5, 5}, 10, 0, 10},
		{"drop oldest", []int64{4, 4, 4}, 10, 1, 8},
		{"drop two", []int64{6, 3, 3, 3}, 7, 2, 6},
		{"newest alone over budget", []int64{4, 4, 20}, 10, 2, 20},
		{"single item over budget", []int64{20}, 10, 0, 20},
		{"older big item goes first", []int64{9, 1, 1}, 3, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evict, remaining := Plan(tt.sizes, tt.limit)
			assert.Equal(t, tt.wantEvict, evict)
			assert.Equal(t, tt.wantRemaining, remaining)
		})
	}
}

func TestReconcileEvictsOldestFirst(t *testing.T) {
	f := newFixture(t, "10M")
	a := f.add(t, "a", 4_000_000)
	b := f.add(t, "b", 4_000_000)
	c := f.add(t, "c", 4_000_000)

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)

	require.Len(t, res.Evicted, 1)
	assert.Equal(t, a.Archive, res.Evicted[0].Archive)
	assert.Equal(t, int64(8_000_000), res.TotalSize)
	assert.Equal(t, int64(10_000_000), res.Limit)

	st := f.statuses(t)
	assert.Equal(t, catalog.StatusDeleted, st[a.Archive])
	assert.Equal(t, catalog.StatusArchived, st[b.Archive])
	assert.Equal(t, catalog.StatusArchived, st[c.Archive])

	assert.NoFileExists(t, filepath.Join(f.root, a.Archive))
	assert.FileExists(t, filepath.Join(f.root, b.Archive))
	assert.FileExists(t, filepath.Join(f.root, c.Archive))
	assert.Equal(t, []string{a.Archive}, res.Removed)
}

func TestReconcileUnderBudgetIsNoop(t *testing.T) {
	f := newFixture(t, "1m")
	a := f.add(t, "a", 1000)

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)
	assert.Empty(t, res.Evicted)
	assert.Empty(t, res.Removed)
	assert.Equal(t, catalog.StatusArchived, f.statuses(t)[a.Archive])
	assert.Equal(t, []string{".lock", a.Archive, "meta.db"}, testutil.ListDir(t, f.root))
}

func TestReconcileKeepsNewestEvenOverBudget(t *testing.T) {
	f := newFixture(t, "1000")
	old := f.add(t, "old", 500)
	huge := f.add(t, "huge", 5000)

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)

	st := f.statuses(t)
	assert.Equal(t, catalog.StatusDeleted, st[old.Archive])
	assert.Equal(t, catalog.StatusArchived, st[huge.Archive])
	assert.Equal(t, int64(5000), res.TotalSize)
	assert.NotEmpty(t, f.rec.Find(slog.LevelWarn, "newest item alone exceeds size limit"))
}

func TestReconcileMissingBlobCountsAsZero(t *testing.T) {
	f := newFixture(t, "10")
	ghost := f.add(t, "ghost", 100)
	require.NoError(t, os.Remove(filepath.Join(f.root, ghost.Archive)))
	kept := f.add(t, "kept", 8)

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{ghost.Archive}, res.Missing)
	assert.Empty(t, res.Evicted, "0 + 8 fits in 10")
	assert.Equal(t, catalog.StatusArchived, f.statuses(t)[ghost.Archive])
	assert.FileExists(t, filepath.Join(f.root, kept.Archive))

	warnings := f.rec.Find(slog.LevelWarn, "archived item has no blob; counting it as zero bytes")
	require.Len(t, warnings, 1)
	assert.Equal(t, ghost.Archive, warnings[0].Attrs["archive"])
}

func TestReconcileSweepsUntrackedEntries(t *testing.T) {
	f := newFixture(t, "1g")
	a := f.add(t, "a", 10)
	restored := f.add(t, "r", 10)
	require.NoError(t, f.cat.MarkStatus(t.Context(), restored.Name, restored.Version, catalog.StatusRestored))

	testutil.WriteTree(t, f.root, map[string]string{
		"stray.txt":                "junk",
		"partial-dir/inner/file":   "junk",
		".a-9.tar.gz.deadbeef.tmp": "half written",
	})

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{".a-9.tar.gz.deadbeef.tmp", "partial-dir", restored.Archive, "stray.txt"},
		res.Removed)
	assert.Equal(t,
		[]string{".lock", a.Archive, "meta.db"},
		testutil.ListDir(t, f.root))
	assert.Equal(t, catalog.StatusRestored, f.statuses(t)[restored.Archive], "sweep does not change status")
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, "10M")
	f.add(t, "a", 4_000_000)
	f.add(t, "b", 4_000_000)
	f.add(t, "c", 4_000_000)

	_, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)
	before := testutil.ListDir(t, f.root)

	res, err := f.engine.Reconcile(t.Context())
	require.NoError(t, err)
	assert.Empty(t, res.Evicted)
	assert.Empty(t, res.Removed)
	assert.Equal(t, before, testutil.ListDir(t, f.root))
}

func TestSweepContinuesAfterFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not stop root")
	}
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"locked/child": "x",
		"loose.txt":    "y",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	logger, rec := logging.NewRecorder()
	removed, errs, err := Sweep(root, map[string]struct{}{}, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"loose.txt"}, removed)
	require.Len(t, errs, 1)
	assert.NotEmpty(t, rec.Find(slog.LevelError, "failed to clean up"))
}

func TestSweepMissingRoot(t *testing.T) {
	_, _, err := Sweep(filepath.Join(t.TempDir(), "gone"), nil, nil)
	assert.Error(t, err)
}
