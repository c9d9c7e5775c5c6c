package lifecycle

import (
	"fmt"
	"time"

	"github.com/schmitthub/torrentbed/internal/engine"
)

// OutcomeKind classifies how reconciliation ended.
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeRecoveredFromConflict
	OutcomeRecoveredFromMissingImage
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeRecoveredFromConflict:
		return "recovered_from_conflict"
	case OutcomeRecoveredFromMissingImage:
		return "recovered_from_missing_image"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Stage names the step an error came from.
type Stage string

const (
	StagePull   Stage = "pull"
	StageCreate Stage = "create"
	StageRemove Stage = "remove"
	StageStart  Stage = "start"
	StageHealth Stage = "health"
	StageExec   Stage = "exec"
	StageAttach Stage = "attach"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Step is one engine call made during reconciliation.
type Step struct {
	Stage    Stage
	Target   string // name, image reference or container ID
	Duration time.Duration
	Err      error
}

// Outcome describes one reconciliation.
//
// When a single call recovers from both a conflict and a missing image,
// Kind is RecoveredFromConflict so that ExistingID is always meaningful.
type Outcome struct {
	Kind OutcomeKind
	// ExistingID is the ID of the container removed to resolve a name
	// conflict. It may be empty if the engine did not reveal it.
	ExistingID string
	Err        error
	Handle     engine.Handle
	Steps      []Step
}

// Pulled reports whether an image pull happened.
func (o Outcome) Pulled() bool {
	for _, s := range o.Steps {
		if s.Stage == StagePull {
			return true
		}
	}
	return false
}

// StepNames lists the stages in order, e.g. [create pull create start].
func (o Outcome) StepNames() []string {
	names := make([]string, len(o.Steps))
	for i, s := range o.Steps {
		names[i] = string(s.Stage)
	}
	return names
}
