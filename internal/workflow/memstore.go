package workflow

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory implementation of TemplateStore,
// EdgeStore and InstanceStore. It backs the test suite and the reference
// wiring; production deployments supply their own store implementations.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string][]StageTemplate       // workflow version -> stages
	edges     map[string][]StageDependencyEdge // workflow version -> edges
	instances map[instanceKey]StageInstance
}

type instanceKey struct {
	projectID int64
	stageCode string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string][]StageTemplate),
		edges:     make(map[string][]StageDependencyEdge),
		instances: make(map[instanceKey]StageInstance),
	}
}

// SeedVersion registers the templates and edges of one workflow version.
func (s *MemoryStore) SeedVersion(version string, stages []StageTemplate, edges []StageDependencyEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[version] = append([]StageTemplate(nil), stages...)
	s.edges[version] = append([]StageDependencyEdge(nil), edges...)
}

// SeedInstance registers or replaces one stage instance.
func (s *MemoryStore) SeedInstance(inst StageInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instanceKey{inst.ProjectID, inst.StageCode}] = inst
}

// ListStages implements TemplateStore.
func (s *MemoryStore) ListStages(ctx context.Context, version string) ([]StageTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StageTemplate(nil), s.templates[version]...), nil
}

// ListEdges implements EdgeStore.
func (s *MemoryStore) ListEdges(ctx context.Context, version string) ([]StageDependencyEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StageDependencyEdge(nil), s.edges[version]...), nil
}

// Snapshot implements InstanceStore.
func (s *MemoryStore) Snapshot(ctx context.Context, projectID int64) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot)
	for key, inst := range s.instances {
		if key.projectID == projectID {
			snap[key.stageCode] = inst
		}
	}
	return snap, nil
}

// Get implements InstanceStore.
func (s *MemoryStore) Get(ctx context.Context, projectID int64, stageCode string) (*StageInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceKey{projectID, stageCode}]
	if !ok {
		return nil, fmt.Errorf("%w: stage %s of project %d", ErrStageNotFound, stageCode, projectID)
	}
	out := inst
	return &out, nil
}

// Update implements InstanceStore.
func (s *MemoryStore) Update(ctx context.Context, inst *StageInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := inst.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := instanceKey{inst.ProjectID, inst.StageCode}
	if _, ok := s.instances[key]; !ok {
		return fmt.Errorf("%w: stage %s of project %d", ErrStageNotFound, inst.StageCode, inst.ProjectID)
	}
	s.instances[key] = *inst
	return nil
}
