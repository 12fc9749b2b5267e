package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/roach88/archiver/internal/catalog"
	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/logging"
	"github.com/roach88/archiver/internal/repo"
	"github.com/roach88/archiver/internal/retention"
	"github.com/roach88/archiver/internal/testutil"
)

// Work directory layout.
const (
	rootDir   = "root"
	sourceDir = "src"
	outputDir = "out"
)

// corruptBytes replace a blob's content for corrupt steps.
var corruptBytes = []byte("this is not a gzip stream\n")

// Options configures a scenario run.
type Options struct {
	// Logger receives repository logs. Defaults to a no-op logger.
	Logger *slog.Logger
}

// runner holds the state of one scenario execution.
type runner struct {
	work   string
	root   string
	src    string
	out    string
	opts   repo.Options
	result *Result
}

// Run executes a scenario inside workDir, which should be empty.
//
// Execution flow:
//  1. Create root, src and out under workDir and write the file fixtures
//  2. Execute each flow step; repository operations run as separate
//     sessions, exactly as separate command invocations would
//  3. Capture the final catalog, root entries and settings
//  4. Evaluate assertions
//
// The returned error reports harness failures (a fixture that cannot be
// written, a catalog that cannot be read). Expectation mismatches and
// failed assertions are recorded in Result.Errors instead.
func Run(ctx context.Context, scenario *Scenario, workDir string, opts Options) (*Result, error) {
	work, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work directory: %w", err)
	}

	r := &runner{
		work: work,
		root: filepath.Join(work, rootDir),
		src:  filepath.Join(work, sourceDir),
		out:  filepath.Join(work, outputDir),
		opts: repo.Options{
			Logger: logging.OrNop(opts.Logger),
			Clock:  testutil.NewDeterministicClock().Now,
		},
		result: NewResult(),
	}

	for _, dir := range []string{r.root, r.src, r.out} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if err := r.writeFixtures(scenario.Files); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	for i, step := range scenario.Flow {
		trace, err := r.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		r.result.Steps = append(r.result.Steps, trace)
		r.checkExpect(i, step.Expect, trace)
	}

	if err := r.capture(ctx); err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}

	for i, a := range scenario.Assertions {
		if err := r.checkAssertion(a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}

	return r.result, nil
}

func (r *runner) writeFixtures(files []FileFixture) error {
	for _, f := range files {
		p := filepath.Join(r.src, filepath.FromSlash(f.Path))
		if strings.HasSuffix(f.Path, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		data := []byte(f.Content)
		if f.Random > 0 {
			data = testutil.RandomBytes(f.Random, f.Seed)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// execute runs one step. The operation's own error lands in the trace for
// the expect clause to judge; the returned error is a harness failure.
func (r *runner) execute(ctx context.Context, seq int, step Step) (StepTrace, error) {
	trace := StepTrace{Seq: seq}

	switch {
	case step.Archive != "":
		trace.Op, trace.Target = "archive", step.Archive
		var item catalog.Item
		res, err := repo.Run(ctx, r.root, r.opts, func(ctx context.Context, rp *repo.Repository) error {
			var err error
			item, err = rp.Archive(ctx, filepath.Join(r.src, filepath.FromSlash(step.Archive)))
			return err
		})
		trace.session(res, err)
		if err == nil {
			trace.Item, trace.Version, trace.Status = item.Archive, item.Version, string(item.Status)
		}
		return trace, nil

	case step.Restore != nil:
		trace.Op, trace.Target = "restore", step.Restore.Name
		req := repo.RestoreRequest{Name: step.Restore.Name, Version: step.Restore.Version}
		if step.Restore.Directory != "" {
			req.Directory = filepath.Join(r.out, filepath.FromSlash(step.Restore.Directory))
			if err := os.MkdirAll(req.Directory, 0o755); err != nil {
				return trace, err
			}
		}
		var restored repo.Restored
		res, err := repo.Run(ctx, r.root, r.opts, func(ctx context.Context, rp *repo.Repository) error {
			var err error
			restored, err = rp.Restore(ctx, req)
			return err
		})
		trace.session(res, err)
		if err == nil {
			trace.Item, trace.Version, trace.Status = restored.Archive, restored.Version, string(restored.Status)
		}
		return trace, nil

	case step.Config != nil:
		trace.Op, trace.Target = "config", step.Config.Key
		key, err := config.ParseKey(step.Config.Key)
		if err != nil {
			trace.fail(err)
			return trace, nil
		}
		var value string
		res, err := repo.Run(ctx, r.root, r.opts, func(ctx context.Context, rp *repo.Repository) error {
			var err error
			if step.Config.Value != "" {
				value, err = rp.SetConfig(ctx, key, step.Config.Value)
			} else {
				value, err = rp.Config(ctx, key)
			}
			return err
		})
		trace.session(res, err)
		trace.Value = value
		return trace, nil

	case step.List != nil:
		trace.Op, trace.Target = "list", step.List.Pattern
		re, err := regexp.Compile(step.List.Pattern)
		if err != nil {
			trace.fail(err)
			return trace, nil
		}
		var items []catalog.Item
		res, err := repo.Run(ctx, r.root, r.opts, func(ctx context.Context, rp *repo.Repository) error {
			var err error
			items, err = rp.List(ctx, re)
			return err
		})
		trace.session(res, err)
		if err == nil {
			n := len(items)
			trace.Count = &n
		}
		return trace, nil

	case step.Stray != "":
		trace.Op, trace.Target = "stray", step.Stray
		p := filepath.Join(r.root, filepath.FromSlash(step.Stray))
		if strings.HasSuffix(step.Stray, "/") {
			p = filepath.Join(p, "stray.txt")
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return trace, err
		}
		return trace, os.WriteFile(p, []byte("stray\n"), 0o644)

	case step.Corrupt != "":
		trace.Op, trace.Target = "corrupt", step.Corrupt
		return trace, os.WriteFile(filepath.Join(r.root, step.Corrupt), corruptBytes, 0o644)
	}

	return trace, fmt.Errorf("step has no operation")
}

// fail records a failed operation.
func (t *StepTrace) fail(err error) {
	t.err = err
	t.Error = errorKind(err)
}

// session records a session's error and retention outcome.
func (t *StepTrace) session(res retention.Result, err error) {
	t.fail(err)
	for _, item := range res.Evicted {
		t.Evicted = append(t.Evicted, item.Archive)
	}
	t.Removed = res.Removed
}

func (r *runner) checkExpect(i int, expect *ExpectClause, trace StepTrace) {
	if expect == nil {
		if trace.err != nil {
			r.result.AddError(fmt.Sprintf("flow[%d] (%s): unexpected error: %v", i, trace.Op, trace.err))
		}
		return
	}

	if expect.Error != trace.Error {
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected error %q, got %q (%v)",
			i, trace.Op, expect.Error, trace.Error, trace.err))
		return
	}
	if expect.Version != 0 && expect.Version != trace.Version {
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected version %d, got %d",
			i, trace.Op, expect.Version, trace.Version))
	}
	if expect.Status != "" && expect.Status != trace.Status {
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected status %s, got %s",
			i, trace.Op, expect.Status, trace.Status))
	}
	if expect.Value != "" && expect.Value != trace.Value {
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected value %s, got %s",
			i, trace.Op, expect.Value, trace.Value))
	}
	if expect.Count != nil && (trace.Count == nil || *expect.Count != *trace.Count) {
		got := "none"
		if trace.Count != nil {
			got = fmt.Sprint(*trace.Count)
		}
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected %d items, got %s",
			i, trace.Op, *expect.Count, got))
	}
	if expect.Evicted != nil && !slices.Equal(expect.Evicted, trace.Evicted) {
		r.result.AddError(fmt.Sprintf("flow[%d] (%s): expected evictions %v, got %v",
			i, trace.Op, expect.Evicted, trace.Evicted))
	}
}

// capture reads the final state straight from the catalog, outside any
// session, so that no extra retention pass runs.
func (r *runner) capture(ctx context.Context) error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		r.result.Root = append(r.result.Root, e.Name())
	}

	cat, err := catalog.Open(ctx, filepath.Join(r.root, catalog.FileName))
	if err != nil {
		return err
	}
	defer cat.Close()

	items, err := cat.ListItems(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		source, err := filepath.Rel(r.work, item.Source)
		if err != nil {
			source = item.Source
		}
		r.result.Items = append(r.result.Items, ItemState{
			Name:      item.Name,
			Version:   item.Version,
			Timestamp: item.Timestamp.UTC().Format(time.RFC3339),
			Status:    string(item.Status),
			Source:    filepath.ToSlash(source),
			Archive:   item.Archive,
		})
	}

	settings, err := cat.Settings(ctx)
	if err != nil {
		return err
	}
	for _, key := range config.Keys {
		value, err := settings.Value(key)
		if err != nil {
			return err
		}
		r.result.Config[string(key)] = value
	}
	return nil
}
