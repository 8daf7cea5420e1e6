package workflow

import (
	"errors"
	"fmt"
	"time"
)

// StageStatus is the lifecycle status of a single stage instance.
type StageStatus string

const (
	StatusNotStarted StageStatus = "NOT_STARTED"
	StatusInProgress StageStatus = "IN_PROGRESS"
	StatusCompleted  StageStatus = "COMPLETED"
	StatusSkipped    StageStatus = "SKIPPED"
)

// String returns the string representation of the status.
func (s StageStatus) String() string { return string(s) }

// Terminal reports whether the status is a resting state that no guarded
// transition moves out of.
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Resolved reports whether the stage no longer blocks downstream stages.
// A dependency is satisfied when it is either completed or skipped.
func (s StageStatus) Resolved() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Well-known stage codes that carry hard-coded cross-stage rules. All other
// stage codes are interpreted purely through the dependency graph.
const (
	// StageEAS cannot start or complete while an unresolved PNC stage exists.
	StageEAS = "EAS"
	// StagePNC is the only stage that may be skipped.
	StagePNC = "PNC"
	// StageTEC and StageBM form the parallel pair gating COB completion.
	StageTEC = "TEC"
	StageBM  = "BM"
	// StageCOB may only complete once both TEC and BM are completed.
	StageCOB = "COB"
)

// StageTemplate describes one stage of a published workflow version.
// Templates are immutable once the version is published; a project pins one
// version for its whole lifetime.
type StageTemplate struct {
	WorkflowVersion string `json:"workflow_version" yaml:"workflow_version"`
	Code            string `json:"code" yaml:"code"`
	DisplayName     string `json:"display_name" yaml:"display_name"`
	SequenceOrder   int    `json:"sequence_order" yaml:"sequence_order"`
	IsOptional      bool   `json:"is_optional" yaml:"is_optional"`
	// ParallelGroup groups stages that may run concurrently. Empty means the
	// stage runs alone.
	ParallelGroup string `json:"parallel_group,omitempty" yaml:"parallel_group,omitempty"`
}

// StageDependencyEdge is one precedence constraint: FromCode cannot start
// until DependsOnCode is completed or skipped.
type StageDependencyEdge struct {
	WorkflowVersion string `json:"workflow_version" yaml:"workflow_version"`
	FromCode        string `json:"from_code" yaml:"from_code"`
	DependsOnCode   string `json:"depends_on_code" yaml:"depends_on_code"`
}

// StageInstance is the per-project state of one stage code. Instances are
// created when a project adopts a workflow version and are never deleted,
// only transitioned.
type StageInstance struct {
	ProjectID int64       `json:"project_id"`
	StageCode string      `json:"stage_code"`
	Status    StageStatus `json:"status"`

	ActualStartDate *time.Time `json:"actual_start_date,omitempty"`
	CompletedOnDate *time.Time `json:"completed_on_date,omitempty"`

	// RequiresDateBackfill marks rows migrated without dates; it is the only
	// escape from the completed-implies-dated invariant.
	RequiresDateBackfill bool `json:"requires_date_backfill,omitempty"`
}

// ErrInvalidInstance is returned when a stage instance violates the
// completed-implies-dated invariant.
var ErrInvalidInstance = errors.New("invalid stage instance")

// Validate checks the instance invariants. A completed stage must carry both
// its start and completion dates unless it is flagged for backfill.
func (si *StageInstance) Validate() error {
	if si.Status == StatusCompleted && !si.RequiresDateBackfill {
		if si.ActualStartDate == nil || si.CompletedOnDate == nil {
			return fmt.Errorf("%w: stage %s of project %d is completed without dates",
				ErrInvalidInstance, si.StageCode, si.ProjectID)
		}
	}
	return nil
}

// Snapshot is the current state of every stage instance of one project,
// keyed by stage code. It is the read model the guard predicates evaluate.
type Snapshot map[string]StageInstance

// Status returns the status of the given stage code and whether the stage
// exists in the snapshot at all.
func (s Snapshot) Status(code string) (StageStatus, bool) {
	inst, ok := s[code]
	if !ok {
		return "", false
	}
	return inst.Status, true
}
