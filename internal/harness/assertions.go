package harness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/config"
)

// checkAssertion evaluates one assertion against the captured state.
func (r *runner) checkAssertion(a Assertion) error {
	switch a.Type {
	case AssertItemStatus:
		return r.assertItemStatus(a)
	case AssertRootEntries:
		return r.assertRootEntries(a)
	case AssertConfigValue:
		return r.assertConfigValue(a)
	case AssertSameTree:
		return r.assertSameTree(a)
	case AssertWithinBudget:
		return r.assertWithinBudget()
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (r *runner) assertItemStatus(a Assertion) error {
	name := catalog.NormalizeName(a.Name)
	for _, item := range r.result.Items {
		if item.Name == name && item.Version == a.Version {
			if item.Status != a.Status {
				return fmt.Errorf("%s version %d is %s, expected %s", a.Name, a.Version, item.Status, a.Status)
			}
			return nil
		}
	}
	return fmt.Errorf("no item %s version %d", a.Name, a.Version)
}

func (r *runner) assertRootEntries(a Assertion) error {
	want := slices.Clone(a.Entries)
	slices.Sort(want)
	if !slices.Equal(want, r.result.Root) {
		return fmt.Errorf("root holds %v, expected %v", r.result.Root, want)
	}
	return nil
}

func (r *runner) assertConfigValue(a Assertion) error {
	got, ok := r.result.Config[a.Key]
	if !ok {
		return fmt.Errorf("setting %s not captured", a.Key)
	}
	if got != a.Value {
		return fmt.Errorf("setting %s is %s, expected %s", a.Key, got, a.Value)
	}
	return nil
}

func (r *runner) assertSameTree(a Assertion) error {
	want, err := digestTree(filepath.Join(r.src, filepath.FromSlash(a.Source)))
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	got, err := digestTree(filepath.Join(r.out, filepath.FromSlash(a.Target)))
	if err != nil {
		return fmt.Errorf("read target: %w", err)
	}

	paths := make([]string, 0, len(want))
	for p := range want {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		g, ok := got[p]
		if !ok {
			return fmt.Errorf("%s missing from target", p)
		}
		if g != want[p] {
			return fmt.Errorf("%s differs: %s != %s", p, g, want[p])
		}
	}
	if len(got) != len(want) {
		return fmt.Errorf("target has %d entries, source has %d", len(got), len(want))
	}
	return nil
}

// assertWithinBudget checks the retention invariant: the Archived blobs fit
// the size limit unless only the newest item is left.
func (r *runner) assertWithinBudget() error {
	limit, err := strconv.ParseInt(r.result.Config[string(config.KeySize)], 10, 64)
	if err != nil {
		return fmt.Errorf("size limit: %w", err)
	}

	var total int64
	var archived int
	for _, item := range r.result.Items {
		if item.Status != string(catalog.StatusArchived) {
			continue
		}
		archived++
		info, err := os.Stat(filepath.Join(r.root, item.Archive))
		if err != nil {
			// Missing blobs count as zero bytes.
			continue
		}
		total += info.Size()
	}

	if total > limit && archived > 1 {
		return fmt.Errorf("%d archived items take %d bytes, over the limit of %d", archived, total, limit)
	}
	return nil
}

// digestTree maps every path under root to a digest of its type,
// permissions and content.
func digestTree(root string) (map[string]string, error) {
	out := map[string]string{}
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

		h := sha256.New()
		fmt.Fprintf(h, "%v\n", info.Mode().Type()|info.Mode().Perm())
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			h.Write([]byte(target))
		case info.Mode().IsRegular():
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			h.Write(data)
		}
		out[filepath.ToSlash(rel)] = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	return out, err
}
