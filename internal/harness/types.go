package harness

import (
	"errors"

	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/repo"
)

// StepTrace records the outcome of one flow step.
type StepTrace struct {
	Seq int    `json:"seq"`
	Op  string `json:"op"` // "archive" | "restore" | "config" | "list" | "stray" | "corrupt"

	// Target is what the step acted on: a source path, item name, setting
	// key, list pattern or root entry.
	Target string `json:"target,omitempty"`

	// Error is the error kind, empty on success.
	Error string `json:"error,omitempty"`

	// Item is the archive name the step created or restored.
	Item    string `json:"item,omitempty"`
	Version int64  `json:"version,omitempty"`
	Status  string `json:"status,omitempty"`
	Value   string `json:"value,omitempty"`
	Count   *int   `json:"count,omitempty"`

	// Evicted and Removed come from the session's retention pass.
	Evicted []string `json:"evicted,omitempty"`
	Removed []string `json:"removed,omitempty"`

	err error
}

// ItemState is one catalog row without its blob size, which depends on the
// compressor's output.
type ItemState struct {
	Name      string `json:"name"`
	Version   int64  `json:"version"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Source    string `json:"source"` // relative to the work directory
	Archive   string `json:"archive"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions hold.
	Pass bool `json:"pass"`

	// Steps contains one trace per flow step, in order.
	Steps []StepTrace `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Items is the final catalog, oldest first.
	Items []ItemState `json:"items"`

	// Root is the sorted list of entries in the root after the flow.
	Root []string `json:"root"`

	// Config maps each setting key to its stored value.
	Config map[string]string `json:"config"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Errors: []string{},
		Items:  []ItemState{},
		Root:   []string{},
		Config: map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Error kinds a step can expect.
const (
	ErrorNotFound      = "not_found"
	ErrorAmbiguous     = "ambiguous"
	ErrorCompress      = "compress"
	ErrorInvalidSource = "invalid_source"
	ErrorUnknownKey    = "unknown_key"
	ErrorInvalidSize   = "invalid_size"
	ErrorOther         = "other"
)

var errorKinds = map[string]error{
	ErrorNotFound:      repo.ErrNotFound,
	ErrorAmbiguous:     repo.ErrAmbiguous,
	ErrorCompress:      repo.ErrCompress,
	ErrorInvalidSource: repo.ErrInvalidSource,
	ErrorUnknownKey:    config.ErrUnknownKey,
	ErrorInvalidSize:   config.ErrInvalidSize,
	ErrorOther:         nil,
}

// errorKind classifies err. A nil error has no kind.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range []string{
		ErrorNotFound,
		ErrorAmbiguous,
		ErrorCompress,
		ErrorInvalidSource,
		ErrorUnknownKey,
		ErrorInvalidSize,
	} {
		if errors.Is(err, errorKinds[kind]) {
			return kind
		}
	}
	return ErrorOther
}
