package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a scenario run. It leaves out blob sizes
// and absolute paths so that it is identical on every machine.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Steps    []StepTrace       `json:"steps"`
	Items    []ItemState       `json:"items"`
	Root     []string          `json:"root"`
	Config   map[string]string `json:"config"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		Scenario: name,
		Steps:    result.Steps,
		Items:    result.Items,
		Root:     result.Root,
		Config:   result.Config,
	}
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
// encoding/json sorts map keys, so the output is deterministic.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario in a temporary directory and compares
// its snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario's own expectations and assertions are checked as well; a
// failing one fails the test before the golden comparison.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, t.TempDir(), Options{})
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's snapshot against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
