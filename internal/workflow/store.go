package workflow

import (
	"context"
	"errors"
)

// ErrStageNotFound is returned by instance stores when a (project, stage)
// pair does not resolve.
var ErrStageNotFound = errors.New("stage instance not found")

// TemplateStore reads the immutable stage templates of a workflow version.
type TemplateStore interface {
	ListStages(ctx context.Context, workflowVersion string) ([]StageTemplate, error)
}

// EdgeStore reads the dependency edges of a workflow version.
type EdgeStore interface {
	ListEdges(ctx context.Context, workflowVersion string) ([]StageDependencyEdge, error)
}

// InstanceStore reads and writes per-project stage instances. Update is the
// only write path; status and dates must never be mutated elsewhere.
type InstanceStore interface {
	// Snapshot returns every stage instance of the project, keyed by code.
	Snapshot(ctx context.Context, projectID int64) (Snapshot, error)

	// Get returns one stage instance or ErrStageNotFound.
	Get(ctx context.Context, projectID int64, stageCode string) (*StageInstance, error)

	// Update persists a transitioned instance. The instance must satisfy
	// Validate; stores reject invalid rows.
	Update(ctx context.Context, inst *StageInstance) error
}
