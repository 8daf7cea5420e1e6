package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRequestStore is a mutex-guarded in-memory RequestStore. The Decide
// path implements first-writer-wins under the lock, so concurrent decisions
// against the same row resolve exactly as a row-versioned SQL store would:
// one succeeds, the other observes a stale token. Reads hand out detached
// clones; row memory is only ever mutated inside Decide under the lock.
type MemoryRequestStore[T Request] struct {
	mu     sync.Mutex
	rows   map[int64]T
	nextID int64
}

// NewMemoryRequestStore creates an empty store.
func NewMemoryRequestStore[T Request]() *MemoryRequestStore[T] {
	return &MemoryRequestStore[T]{rows: make(map[int64]T)}
}

// Add inserts a request. A zero id is assigned the next free one; a zero
// token is minted for kinds that support optimistic locking. The assigned
// meta fields are visible on the caller's value, but the store keeps its own
// clone, so the caller's pointer never aliases row memory. Returns the id.
func (s *MemoryRequestStore[T]) Add(req T) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := req.Meta()
	if meta.ID == 0 {
		s.nextID++
		meta.ID = s.nextID
	} else if meta.ID > s.nextID {
		s.nextID = meta.ID
	}
	if meta.Status == "" {
		meta.Status = StatusPending
	}
	if meta.Token.IsZero() && req.Kind().RequiresToken() {
		meta.Token = NewVersionToken()
	}
	s.rows[meta.ID] = req.Clone().(T)
	return meta.ID
}

// ListPending implements RequestStore.
func (s *MemoryRequestStore[T]) ListPending(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, req := range s.rows {
		if req.Meta().Status == StatusPending {
			out = append(out, req.Clone().(T))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta().ID < out[j].Meta().ID })
	return out, nil
}

// Get implements RequestStore.
func (s *MemoryRequestStore[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.rows[id]
	if !ok {
		return zero, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return req.Clone().(T), nil
}

// Decide implements RequestStore. The whole check-prepare-flip sequence runs
// under the store lock, standing in for the single transaction a SQL store
// would use.
func (s *MemoryRequestStore[T]) Decide(ctx context.Context, id int64, expected VersionToken, rec DecisionRecord, prepare func(T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	meta := req.Meta()
	if meta.Status != StatusPending {
		return fmt.Errorf("%w: id %d is %s", ErrAlreadyDecided, id, meta.Status)
	}
	if !meta.Token.IsZero() && expected != meta.Token {
		return fmt.Errorf("%w: id %d", ErrTokenStale, id)
	}

	if prepare != nil {
		if err := prepare(req); err != nil {
			return err
		}
	}

	switch rec.Decision {
	case DecisionApprove:
		meta.Status = StatusApproved
	case DecisionReject:
		meta.Status = StatusRejected
	default:
		return fmt.Errorf("unknown decision %q", rec.Decision)
	}
	meta.Remarks = rec.Remarks
	meta.DecidedByUserID = rec.DecidedByUserID
	decidedAt := rec.DecidedAt
	meta.DecidedAt = &decidedAt
	if !meta.Token.IsZero() {
		meta.Token = NewVersionToken()
	}
	return nil
}

// MemoryUserDirectory is an in-memory UserDirectory.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	names map[int64]string
}

// NewMemoryUserDirectory creates a directory over the given id -> name map.
func NewMemoryUserDirectory(names map[int64]string) *MemoryUserDirectory {
	if names == nil {
		names = make(map[int64]string)
	}
	return &MemoryUserDirectory{names: names}
}

// DisplayNames implements UserDirectory.
func (d *MemoryUserDirectory) DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := d.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

// MemoryPlanStore is an in-memory PlanStore.
type MemoryPlanStore struct {
	mu    sync.RWMutex
	plans map[int64][]PlanStageEntry
}

// NewMemoryPlanStore creates an empty plan store.
func NewMemoryPlanStore() *MemoryPlanStore {
	return &MemoryPlanStore{plans: make(map[int64][]PlanStageEntry)}
}

// SetApprovedPlan registers the approved plan of a project.
func (s *MemoryPlanStore) SetApprovedPlan(projectID int64, plan []PlanStageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[projectID] = append([]PlanStageEntry(nil), plan...)
}

// ApprovedPlan implements PlanStore. A project without an approved plan
// yields an empty plan, not an error.
func (s *MemoryPlanStore) ApprovedPlan(ctx context.Context, projectID int64) ([]PlanStageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PlanStageEntry(nil), s.plans[projectID]...), nil
}

// MemoryStores bundles one in-memory store per kind, with the concrete types
// exposed so tests and seed code can call Add.
type MemoryStores struct {
	StageChanges            *MemoryRequestStore[*StageChangeRequest]
	ProjectEdits            *MemoryRequestStore[*ProjectEditRequest]
	Plans                   *MemoryRequestStore[*PlanApprovalRequest]
	Documents               *MemoryRequestStore[*DocumentRequest]
	TechTransfers           *MemoryRequestStore[*TechTransferRequest]
	ProliferationYearly     *MemoryRequestStore[*ProliferationYearlyRequest]
	ProliferationCumulative *MemoryRequestStore[*ProliferationCumulativeRequest]
}

// NewMemoryStores wires a complete in-memory store bundle.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		StageChanges:            NewMemoryRequestStore[*StageChangeRequest](),
		ProjectEdits:            NewMemoryRequestStore[*ProjectEditRequest](),
		Plans:                   NewMemoryRequestStore[*PlanApprovalRequest](),
		Documents:               NewMemoryRequestStore[*DocumentRequest](),
		TechTransfers:           NewMemoryRequestStore[*TechTransferRequest](),
		ProliferationYearly:     NewMemoryRequestStore[*ProliferationYearlyRequest](),
		ProliferationCumulative: NewMemoryRequestStore[*ProliferationCumulativeRequest](),
	}
}

// Stores returns the bundle as the interface set the reader and router take.
func (m *MemoryStores) Stores() Stores {
	return Stores{
		StageChanges:            m.StageChanges,
		ProjectEdits:            m.ProjectEdits,
		Plans:                   m.Plans,
		Documents:               m.Documents,
		TechTransfers:           m.TechTransfers,
		ProliferationYearly:     m.ProliferationYearly,
		ProliferationCumulative: m.ProliferationCumulative,
	}
}
