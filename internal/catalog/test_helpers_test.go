package catalog

import (
	"path/filepath"
	"testing"

	"github.com/roach88/archiver/internal/testutil"
)

// createTestCatalog opens a catalog in a temp dir with a deterministic clock.
func createTestCatalog(t *testing.T) (*Catalog, *testutil.DeterministicClock) {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	path := filepath.Join(t.TempDir(), FileName)
	c, err := Open(t.Context(), path, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, clock
}

// insertTestItem issues a version for name and inserts an Archived row.
func insertTestItem(t *testing.T, c *Catalog, name string, size int64) Item {
	t.Helper()
	v, err := c.NextVersion(t.Context(), name)
	if err != nil {
		t.Fatalf("NextVersion(%q) failed: %v", name, err)
	}
	item, err := c.InsertItem(t.Context(), NewItem{
		Name:    name,
		Version: v,
		Source:  "/src/" + name,
		Archive: ArchiveName(name, v),
		Size:    size,
	})
	if err != nil {
		t.Fatalf("InsertItem(%q) failed: %v", name, err)
	}
	return item
}
