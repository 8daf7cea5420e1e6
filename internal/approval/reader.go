package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/thc1006/stagegate/internal/workflow"
	"github.com/thc1006/stagegate/pkg/monitoring"
)

// Filter narrows the pending queue. All fields are optional.
type Filter struct {
	// Kind restricts the queue to one request kind.
	Kind *Kind
	// ProjectID restricts the queue to one project.
	ProjectID *int64
	// Search is a case-insensitive substring matched against the common
	// fields and each kind's SearchFields.
	Search string
}

// QueueItem is the common projection every pending request is mapped into
// for the review queue.
type QueueItem struct {
	Kind              Kind      `json:"kind"`
	RequestID         string    `json:"request_id"`
	ProjectID         int64     `json:"project_id"`
	ProjectName       string    `json:"project_name"`
	RequestedByUserID int64     `json:"requested_by_user_id"`
	RequestedByName   string    `json:"requested_by_name,omitempty"`
	RequestedAt       time.Time `json:"requested_at"`
	Summary           string    `json:"summary"`
	ModuleTag         string    `json:"module_tag,omitempty"`
	// VersionToken is the concurrency stamp the caller must echo back on
	// decide, for kinds that carry one.
	VersionToken string `json:"version_token,omitempty"`
}

// Reader builds the unified pending queue and single-item detail views. It
// is read-only: nothing it does has side effects.
type Reader struct {
	stores    Stores
	users     UserDirectory
	instances workflow.InstanceStore
	plans     PlanStore
	logger    *slog.Logger
	metrics   *monitoring.Recorder
}

// NewReader wires a queue reader. instances and plans feed the stage-change
// and plan-approval detail views respectively.
func NewReader(stores Stores, users UserDirectory, instances workflow.InstanceStore, plans PlanStore, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		stores:    stores,
		users:     users,
		instances: instances,
		plans:     plans,
		logger:    logger.With("component", "approval-queue"),
	}
}

// SetMetrics registers the recorder fed with per-kind queue depth
// observations. Must be called before the reader is shared between
// goroutines.
func (r *Reader) SetMetrics(rec *monitoring.Recorder) { r.metrics = rec }

// queueEntry pairs the common projection with the kind-specific search
// fields for the lifetime of one ListPending call.
type queueEntry struct {
	item         QueueItem
	searchFields []string
}

// ListPending returns the merged pending queue, oldest request first. Paging
// is owned by callers.
func (r *Reader) ListPending(ctx context.Context, filter Filter) ([]QueueItem, error) {
	var entries []queueEntry
	for _, kind := range AllKinds() {
		if filter.Kind != nil && *filter.Kind != kind {
			continue
		}
		kindEntries, err := r.pendingOfKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list pending %s requests: %w", kind, err)
		}
		// Project and search filtering happen later, so this is the full
		// pending depth of the kind.
		r.metrics.SetQueueDepth(kind.String(), len(kindEntries))
		entries = append(entries, kindEntries...)
	}

	if filter.ProjectID != nil {
		entries = filterEntries(entries, func(e queueEntry) bool {
			return e.item.ProjectID == *filter.ProjectID
		})
	}

	if err := r.joinDisplayNames(ctx, entries); err != nil {
		return nil, err
	}

	if q := strings.TrimSpace(filter.Search); q != "" {
		needle := strings.ToLower(q)
		entries = filterEntries(entries, func(e queueEntry) bool {
			return matchesSearch(e, needle)
		})
	}

	// FIFO review queue: oldest first across all kinds. The stable sort
	// keeps the internal kind order for requests submitted at the same
	// instant.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].item.RequestedAt.Before(entries[j].item.RequestedAt)
	})

	items := make([]QueueItem, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items, nil
}

func (r *Reader) pendingOfKind(ctx context.Context, kind Kind) ([]queueEntry, error) {
	switch kind {
	case KindStageChange:
		return collectPending(ctx, r.stores.StageChanges)
	case KindProjectEdit:
		return collectPending(ctx, r.stores.ProjectEdits)
	case KindPlanApproval:
		return collectPending(ctx, r.stores.Plans)
	case KindDocument:
		return collectPending(ctx, r.stores.Documents)
	case KindTechTransfer:
		return collectPending(ctx, r.stores.TechTransfers)
	case KindProliferationYearly:
		return collectPending(ctx, r.stores.ProliferationYearly)
	case KindProliferationCumulative:
		return collectPending(ctx, r.stores.ProliferationCumulative)
	}
	return nil, fmt.Errorf("unknown approval kind %q", kind)
}

func collectPending[T Request](ctx context.Context, store RequestStore[T]) ([]queueEntry, error) {
	reqs, err := store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]queueEntry, 0, len(reqs))
	for _, req := range reqs {
		entries = append(entries, queueEntry{
			item:         toQueueItem(req),
			searchFields: req.SearchFields(),
		})
	}
	return entries, nil
}

func toQueueItem(req Request) QueueItem {
	meta := req.Meta()
	return QueueItem{
		Kind:              req.Kind(),
		RequestID:         strconv.FormatInt(meta.ID, 10),
		ProjectID:         meta.ProjectID,
		ProjectName:       meta.ProjectName,
		RequestedByUserID: meta.RequestedByUserID,
		RequestedAt:       meta.RequestedAt,
		Summary:           req.Summary(),
		ModuleTag:         meta.ModuleTag,
		VersionToken:      meta.Token.String(),
	}
}

func (r *Reader) joinDisplayNames(ctx context.Context, entries []queueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range entries {
		if !seen[e.item.RequestedByUserID] {
			seen[e.item.RequestedByUserID] = true
			ids = append(ids, e.item.RequestedByUserID)
		}
	}
	names, err := r.users.DisplayNames(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve submitter names: %w", err)
	}
	for i := range entries {
		entries[i].item.RequestedByName = names[entries[i].item.RequestedByUserID]
	}
	return nil
}

// matchesSearch checks the lowercased needle against the common queue fields
// and the kind-specific search fields.
func matchesSearch(e queueEntry, needle string) bool {
	haystacks := []string{
		e.item.ProjectName,
		e.item.Summary,
		e.item.RequestedByName,
		e.item.ModuleTag,
		strconv.FormatInt(e.item.ProjectID, 10),
	}
	haystacks = append(haystacks, e.searchFields...)
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func filterEntries(entries []queueEntry, keep func(queueEntry) bool) []queueEntry {
	out := entries[:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
