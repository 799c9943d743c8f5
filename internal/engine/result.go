package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/esxigrid/internal/property"
)

// Action is what the engine did, or would do, to one resource.
type Action string

const (
	ActionNoop    Action = "no-op"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	// ActionRead covers lookups, refreshes and imports.
	ActionRead   Action = "read"
	ActionImport Action = "import"
)

// Status is how an action ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusPlanned is used by previews, which never execute actions.
	StatusPlanned Status = "planned"
)

// Outcome is the per-resource entry of a run.
type Outcome struct {
	Name     string
	Kind     string
	Action   Action
	Status   Status
	Identity string
	Outputs  property.Bag
	// ReplaceKeys lists the inputs that forced a replacement.
	ReplaceKeys []string
	// Unknown is set by previews when inputs depend on outputs that only
	// exist after apply.
	Unknown  bool
	Err      error
	Duration time.Duration
}

// Result is the outcome list of a run, in scheduling order.
type Result struct {
	RunID    string
	Command  string
	Outcomes []*Outcome
	Elapsed  time.Duration
}

// Summary counts outcomes by action and status.
type Summary struct {
	Created   int
	Updated   int
	Replaced  int
	Deleted   int
	Read      int
	Unchanged int
	Failed    int
	Skipped   int
}

// Summary tallies r's outcomes. Only succeeded or planned actions count
// towards the per-action totals.
func (r *Result) Summary() Summary {
	var s Summary
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusFailed:
			s.Failed++
			continue
		case StatusSkipped:
			s.Skipped++
			continue
		}
		switch o.Action {
		case ActionCreate:
			s.Created++
		case ActionUpdate:
			s.Updated++
		case ActionReplace:
			s.Replaced++
		case ActionDelete:
			s.Deleted++
		case ActionRead, ActionImport:
			s.Read++
		case ActionNoop:
			s.Unchanged++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d created, %d updated, %d replaced, %d deleted, %d read, %d unchanged, %d failed, %d skipped",
		s.Created, s.Updated, s.Replaced, s.Deleted, s.Read, s.Unchanged, s.Failed, s.Skipped)
}

// Outcome returns the outcome recorded for name.
func (r *Result) Outcome(name string) (*Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return nil, false
}

// Err aggregates the root causes of failed outcomes. Skipped resources are
// symptoms and are left out.
func (r *Result) Err() error {
	var failed []string
	var rootCause error
	for _, o := range r.Outcomes {
		if o.Status != StatusFailed || o.Err == nil {
			continue
		}
		failed = append(failed, o.Name)
		if rootCause == nil {
			rootCause = o.Err
		}
	}
	if rootCause == nil {
		for _, o := range r.Outcomes {
			if o.Status == StatusSkipped && o.Err != nil && !isSkip(o.Err) {
				return fmt.Errorf("run interrupted: %w", o.Err)
			}
		}
		return nil
	}
	return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
}

func isSkip(err error) bool {
	var skipped *SkippedError
	return errors.As(err, &skipped)
}
