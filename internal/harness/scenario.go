package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/archiver/internal/config"
)

// Scenario defines a repository conformance scenario.
// A scenario lays out source files, drives a sequence of repository sessions
// against a fresh root, and asserts on the final catalog and root contents.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Files are created under the source directory before the flow runs.
	Files []FileFixture `yaml:"files,omitempty"`

	// Flow contains the steps to execute, in order.
	// Repository operations each run in their own locked session.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	// Supported types: item_status, root_entries, config_value, same_tree,
	// within_budget
	Assertions []Assertion `yaml:"assertions"`
}

// FileFixture is one source file or directory.
type FileFixture struct {
	// Path is relative to the source directory. A trailing "/" creates an
	// empty directory.
	Path string `yaml:"path"`

	// Content is written verbatim.
	Content string `yaml:"content,omitempty"`

	// Random, when set, writes that many pseudo-random bytes seeded by Seed
	// instead of Content.
	Random int64  `yaml:"random,omitempty"`
	Seed   uint64 `yaml:"seed,omitempty"`
}

// Step is one flow entry. Exactly one operation field must be set.
type Step struct {
	// Archive is a source path relative to the source directory.
	Archive string `yaml:"archive,omitempty"`

	// Restore names the item to restore.
	Restore *RestoreStep `yaml:"restore,omitempty"`

	// Config reads or writes a setting.
	Config *ConfigStep `yaml:"config,omitempty"`

	// List lists items matching a pattern.
	List *ListStep `yaml:"list,omitempty"`

	// Stray writes a file into the root outside any session. A trailing "/"
	// creates a directory holding one file.
	Stray string `yaml:"stray,omitempty"`

	// Corrupt overwrites a blob in the root with bytes that are not a
	// gzip stream.
	Corrupt string `yaml:"corrupt,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed and nothing else is checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// RestoreStep mirrors the restore command's arguments.
type RestoreStep struct {
	Name    string `yaml:"name"`
	Version *int64 `yaml:"version,omitempty"`

	// Directory is relative to the output directory. Empty restores next
	// to the source.
	Directory string `yaml:"directory,omitempty"`
}

// ConfigStep writes Value under Key, or reads Key when Value is empty.
type ConfigStep struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value,omitempty"`
}

// ListStep lists items whose name matches Pattern.
type ListStep struct {
	Pattern string `yaml:"pattern,omitempty"`
}

// ExpectClause specifies expected step behavior.
// Only the fields that are set are validated.
type ExpectClause struct {
	// Error is the expected error kind (see ErrorKinds). Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`

	// Version is the version an archive step must produce.
	Version int64 `yaml:"version,omitempty"`

	// Status is the status a restore step must leave the item in.
	Status string `yaml:"status,omitempty"`

	// Value is the setting value a config step must report.
	Value string `yaml:"value,omitempty"`

	// Count is the number of items a list step must return.
	Count *int `yaml:"count,omitempty"`

	// Evicted lists the archives the step's retention pass must evict.
	Evicted []string `yaml:"evicted,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "item_status": the item (Name, Version) has Status
	// - "root_entries": the root holds exactly Entries
	// - "config_value": setting Key holds Value
	// - "same_tree": Target (under the output directory) matches Source
	//   (under the source directory)
	// - "within_budget": Archived blobs fit the size limit, or a single
	//   item remains
	Type string `yaml:"type"`

	Name    string `yaml:"name,omitempty"`
	Version int64  `yaml:"version,omitempty"`
	Status  string `yaml:"status,omitempty"`

	Entries []string `yaml:"entries,omitempty"`

	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`

	Source string `yaml:"source,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Assertion type constants.
const (
	AssertItemStatus   = "item_status"
	AssertRootEntries  = "root_entries"
	AssertConfigValue  = "config_value"
	AssertSameTree     = "same_tree"
	AssertWithinBudget = "within_budget"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by filename.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, f := range s.Files {
		if err := validateRelPath(f.Path); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
		if f.Random > 0 && f.Content != "" {
			return fmt.Errorf("files[%d]: content and random are mutually exclusive", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	ops := 0
	for _, set := range []bool{
		step.Archive != "",
		step.Restore != nil,
		step.Config != nil,
		step.List != nil,
		step.Stray != "",
		step.Corrupt != "",
	} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return fmt.Errorf("exactly one operation is required, got %d", ops)
	}

	switch {
	case step.Archive != "":
		if err := validateRelPath(step.Archive); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	case step.Restore != nil:
		if step.Restore.Name == "" {
			return fmt.Errorf("restore: name is required")
		}
	case step.Config != nil:
		if step.Config.Key == "" {
			return fmt.Errorf("config: key is required")
		}
	case step.Stray != "":
		if err := validateRelPath(step.Stray); err != nil {
			return fmt.Errorf("stray: %w", err)
		}
	case step.Corrupt != "":
		if strings.ContainsRune(step.Corrupt, '/') {
			return fmt.Errorf("corrupt: %q is not a root entry name", step.Corrupt)
		}
	}

	if step.Expect != nil && step.Expect.Error != "" {
		if _, ok := errorKinds[step.Expect.Error]; !ok {
			return fmt.Errorf("expect: unknown error kind %q", step.Expect.Error)
		}
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertItemStatus:
		if a.Name == "" || a.Version == 0 || a.Status == "" {
			return fmt.Errorf("item_status requires name, version and status")
		}
	case AssertRootEntries:
		// An empty entries list is never valid: the lock and catalog always exist.
		if len(a.Entries) == 0 {
			return fmt.Errorf("root_entries requires entries")
		}
	case AssertConfigValue:
		if _, err := config.ParseKey(a.Key); err != nil {
			return fmt.Errorf("config_value: %w", err)
		}
		if a.Value == "" {
			return fmt.Errorf("config_value requires value")
		}
	case AssertSameTree:
		if a.Source == "" || a.Target == "" {
			return fmt.Errorf("same_tree requires source and target")
		}
	case AssertWithinBudget:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func validateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("path is required")
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("path %q must be relative", p)
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes its directory", p)
	}
	return nil
}
