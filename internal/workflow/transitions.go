package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TransitionService is the single mutation path for stage instances. Every
// transition re-evaluates the guard predicates against a freshly loaded
// snapshot at apply time, so an approval granted earlier cannot bypass a
// dependency that has since become unresolved.
type TransitionService struct {
	graphs    *GraphCache
	instances InstanceStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewTransitionService wires the transition service. A nil logger falls back
// to slog.Default.
func NewTransitionService(graphs *GraphCache, instances InstanceStore, logger *slog.Logger) *TransitionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionService{
		graphs:    graphs,
		instances: instances,
		logger:    logger.With("component", "stage-transitions"),
		now:       time.Now,
	}
}

// Start moves the stage to InProgress. startDate defaults to now when nil.
// A guard denial is returned as a non-allowed Verdict with a nil error;
// errors are reserved for store and graph failures.
func (s *TransitionService) Start(ctx context.Context, projectID int64, workflowVersion, stageCode string, startDate *time.Time) (Verdict, error) {
	return s.apply(ctx, projectID, workflowVersion, stageCode, CanStart, func(inst *StageInstance) {
		inst.Status = StatusInProgress
		start := s.now()
		if startDate != nil {
			start = *startDate
		}
		inst.ActualStartDate = &start
	})
}

// Complete moves the stage to Completed. completedOn defaults to now when nil.
func (s *TransitionService) Complete(ctx context.Context, projectID int64, workflowVersion, stageCode string, completedOn *time.Time) (Verdict, error) {
	return s.apply(ctx, projectID, workflowVersion, stageCode, CanComplete, func(inst *StageInstance) {
		inst.Status = StatusCompleted
		done := s.now()
		if completedOn != nil {
			done = *completedOn
		}
		inst.CompletedOnDate = &done
	})
}

// Skip moves the stage to Skipped.
func (s *TransitionService) Skip(ctx context.Context, projectID int64, workflowVersion, stageCode string) (Verdict, error) {
	return s.apply(ctx, projectID, workflowVersion, stageCode, CanSkip, func(inst *StageInstance) {
		inst.Status = StatusSkipped
	})
}

type guardFunc func(*DependencyGraph, Snapshot, string) Verdict

func (s *TransitionService) apply(ctx context.Context, projectID int64, workflowVersion, stageCode string, guard guardFunc, mutate func(*StageInstance)) (Verdict, error) {
	graph, err := s.graphs.Get(ctx, workflowVersion)
	if err != nil {
		return Verdict{}, fmt.Errorf("resolve dependency graph: %w", err)
	}

	snap, err := s.instances.Snapshot(ctx, projectID)
	if err != nil {
		return Verdict{}, fmt.Errorf("load stage snapshot for project %d: %w", projectID, err)
	}

	if v := guard(graph, snap, stageCode); !v.Allowed {
		s.logger.Info("stage transition denied",
			"project_id", projectID,
			"stage_code", stageCode,
			"reason", v.Reason)
		return v, nil
	}

	inst, err := s.instances.Get(ctx, projectID, stageCode)
	if err != nil {
		return Verdict{}, fmt.Errorf("load stage instance %s of project %d: %w", stageCode, projectID, err)
	}

	mutate(inst)
	if err := inst.Validate(); err != nil {
		return Verdict{}, err
	}
	if err := s.instances.Update(ctx, inst); err != nil {
		return Verdict{}, fmt.Errorf("persist stage instance %s of project %d: %w", stageCode, projectID, err)
	}

	s.logger.Info("stage transition applied",
		"project_id", projectID,
		"stage_code", stageCode,
		"status", inst.Status)
	return allow(), nil
}
