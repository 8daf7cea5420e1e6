package approval

import (
	"context"
	"errors"
	"time"
)

// Store sentinels. Kind-specific services translate these into the outcome
// taxonomy; they never reach callers of the router.
var (
	// ErrNotFound means the request id does not resolve for the kind.
	ErrNotFound = errors.New("approval request not found")

	// ErrAlreadyDecided means the request is no longer pending.
	ErrAlreadyDecided = errors.New("approval request already decided")

	// ErrTokenStale means a well-formed token no longer matches the stored
	// one: someone else changed the row since the caller read it.
	ErrTokenStale = errors.New("version token is stale")
)

// DecisionRecord captures who decided what, when. Stores apply it atomically
// together with the pending and token checks.
type DecisionRecord struct {
	Decision        Decision
	DecidedByUserID int64
	Remarks         string
	DecidedAt       time.Time
}

// RequestStore is the per-kind persistence contract. T is the concrete
// request type of the kind.
type RequestStore[T Request] interface {
	// ListPending returns every request whose status is the pending
	// sentinel.
	ListPending(ctx context.Context) ([]T, error)

	// Get returns one request or ErrNotFound.
	Get(ctx context.Context, id int64) (T, error)

	// Decide atomically transitions the request from Pending to the terminal
	// state implied by rec.Decision, under the store's native concurrency
	// control:
	//   - missing row: ErrNotFound
	//   - row not pending: ErrAlreadyDecided
	//   - row token set and expected differs: ErrTokenStale
	// prepare, when non-nil, runs inside the same atomic scope before the
	// state flips; a prepare error aborts the decision without any change.
	// On success the row's token is regenerated.
	Decide(ctx context.Context, id int64, expected VersionToken, rec DecisionRecord, prepare func(T) error) error
}

// Stores bundles the seven kind stores the reader and router operate over.
type Stores struct {
	StageChanges            RequestStore[*StageChangeRequest]
	ProjectEdits            RequestStore[*ProjectEditRequest]
	Plans                   RequestStore[*PlanApprovalRequest]
	Documents               RequestStore[*DocumentRequest]
	TechTransfers           RequestStore[*TechTransferRequest]
	ProliferationYearly     RequestStore[*ProliferationYearlyRequest]
	ProliferationCumulative RequestStore[*ProliferationCumulativeRequest]
}

// UserDirectory resolves user ids to display names for the queue projection.
// Missing ids simply resolve to no entry; the queue shows an empty name.
type UserDirectory interface {
	DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

// Actor is the authenticated user attempting a decision.
type Actor struct {
	UserID      int64
	DisplayName string
	Roles       []string
}

// Authenticated reports whether the actor carries an identity at all.
func (a Actor) Authenticated() bool { return a.UserID > 0 }

// Authorizer answers capability checks for an actor.
type Authorizer interface {
	Can(ctx context.Context, actor Actor, cap Capability) (bool, error)
}

// PlanStore reads the currently approved plan of a project; the plan detail
// view diffs a draft against it.
type PlanStore interface {
	ApprovedPlan(ctx context.Context, projectID int64) ([]PlanStageEntry, error)
}
