package approval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thc1006/stagegate/internal/workflow"
)

func decideReq(kind Kind, id string, decision Decision, token VersionToken) DecisionRequest {
	return DecisionRequest{
		Kind:         kind,
		RequestID:    id,
		Decision:     decision,
		Remarks:      "reviewed",
		VersionToken: token.String(),
	}
}

func TestDecideRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.router.Decide(context.Background(), Actor{}, decideReq(KindDocument, "1", DecisionApprove, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbidden, res.Outcome)
}

func TestDecideRequiresApproverRole(t *testing.T) {
	env := newTestEnv(t)
	outsider := Actor{UserID: 2, Roles: []string{"viewer"}}

	res, err := env.router.Decide(context.Background(), outsider, decideReq(KindDocument, "1", DecisionApprove, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbidden, res.Outcome)
}

func TestDecideKindCapabilityForbidden(t *testing.T) {
	env := newTestEnv(t)
	req := env.addStageChange(at(0), workflow.StagePNC, workflow.StatusSkipped)

	// The role may enter the engine and decide documents, but not stage
	// changes.
	authz := NewRoleAuthorizer(map[string][]Capability{
		"doc-moderator": {CapDecideApprovals, CapDecideDocument},
	})
	router := NewRouter(env.stores.Stores(), authz, nil, nil, nil, nil)
	actor := Actor{UserID: 3, Roles: []string{"doc-moderator"}}

	res, err := router.Decide(context.Background(), actor, decideReq(KindStageChange, "1", DecisionApprove, req.Token))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForbidden, res.Outcome)

	// The request must still be pending afterwards.
	row, gerr := env.stores.StageChanges.Get(context.Background(), req.ID)
	require.NoError(t, gerr)
	assert.Equal(t, StatusPending, row.Status)
}

func TestDecideRejectRequiresRemarks(t *testing.T) {
	env := newTestEnv(t)
	req := env.addDocument(at(0), "Feasibility Report")

	for _, kind := range []Kind{KindDocument, KindStageChange, KindProjectEdit} {
		dr := DecisionRequest{Kind: kind, RequestID: "1", Decision: DecisionReject, Remarks: "   ", VersionToken: req.Token.String()}
		res, err := env.router.Decide(context.Background(), approver, dr)
		require.NoError(t, err)
		assert.Equal(t, OutcomeValidationFailed, res.Outcome, "kind %s", kind)
	}
}

func TestDecideNotFound(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		id   string
	}{
		{"unparseable id", "not-a-number"},
		{"nonexistent id", "424242"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.router.Decide(context.Background(), approver,
				decideReq(KindDocument, tt.id, DecisionApprove, NewVersionToken()))
			require.NoError(t, err)
			assert.Equal(t, OutcomeNotFound, res.Outcome)
		})
	}
}

func TestDecideTerminalIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	req := env.addDocument(at(0), "Feasibility Report")

	res, err := env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, req.Token))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	// Every later decision against the same id reports AlreadyDecided, no
	// matter how valid it would otherwise be.
	row, err := env.stores.Documents.Get(context.Background(), req.ID)
	require.NoError(t, err)
	for _, d := range []Decision{DecisionApprove, DecisionReject} {
		res, err := env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", d, row.Token))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyDecided, res.Outcome)
	}
}

func TestDecideTokenChecks(t *testing.T) {
	t.Run("missing token is a validation failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.addDocument(at(0), "Feasibility Report")

		res, err := env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeValidationFailed, res.Outcome)
		assert.Contains(t, res.Message, "refresh")
	})

	t.Run("malformed token is a validation failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.addDocument(at(0), "Feasibility Report")

		dr := DecisionRequest{Kind: KindDocument, RequestID: "1", Decision: DecisionApprove, VersionToken: "!!not-base64!!"}
		res, err := env.router.Decide(context.Background(), approver, dr)
		require.NoError(t, err)
		assert.Equal(t, OutcomeValidationFailed, res.Outcome)
	})

	t.Run("stale token surfaces as already decided", func(t *testing.T) {
		env := newTestEnv(t)
		env.addDocument(at(0), "Feasibility Report")

		// Well-formed, but not the stored stamp.
		res, err := env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, NewVersionToken()))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyDecided, res.Outcome)
		assert.Contains(t, res.Message, "someone else")
	})

	t.Run("kinds without tokens ignore the field", func(t *testing.T) {
		env := newTestEnv(t)
		env.stores.ProjectEdits.Add(&ProjectEditRequest{
			RequestMeta: RequestMeta{ProjectID: 1, ProjectName: "Coastal Radar Upgrade", RequestedByUserID: 7, RequestedAt: at(0)},
			Changes:     []FieldChange{{Field: "name", OldValue: "Old", NewValue: "New"}},
		})

		res, err := env.router.Decide(context.Background(), approver, decideReq(KindProjectEdit, "1", DecisionApprove, ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, res.Outcome)
	})
}

func TestDecideStaleTokenOnDecidedRequestReportsAlreadyDecided(t *testing.T) {
	env := newTestEnv(t)
	req := env.addDocument(at(0), "Feasibility Report")

	res, err := env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, req.Token))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	// The pending-status check runs before the token check, so a stale token
	// on an already-decided request is reported as AlreadyDecided, not as a
	// token problem.
	res, err = env.router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionReject, req.Token))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDecided, res.Outcome)
}

func TestDecideStageChangeAppliesTransition(t *testing.T) {
	env := newTestEnv(t)
	req := env.addStageChange(at(0), workflow.StagePNC, workflow.StatusSkipped)

	res, err := env.router.Decide(context.Background(), approver, decideReq(KindStageChange, "1", DecisionApprove, req.Token))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	inst, err := env.workflowStore.Get(context.Background(), 1, workflow.StagePNC)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSkipped, inst.Status)

	events := env.published.Events()
	require.Len(t, events, 1)
	assert.Equal(t, KindStageChange.String(), events[0].Kind)
	assert.Equal(t, string(DecisionApprove), events[0].Decision)
	assert.NotEmpty(t, events[0].ID)
}

func TestDecideStageChangeGuardDeniesAtApplyTime(t *testing.T) {
	env := newTestEnv(t)
	// EAS depends on FS, which has not even started: the approval authorizes
	// the attempt, the guard still rejects it.
	req := env.addStageChange(at(0), workflow.StageEAS, workflow.StatusInProgress)

	res, err := env.router.Decide(context.Background(), approver, decideReq(KindStageChange, "1", DecisionApprove, req.Token))
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidationFailed, res.Outcome)
	assert.Contains(t, res.Message, "FS")

	// The denial must leave the request pending and the stage untouched.
	row, err := env.stores.StageChanges.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, row.Status)

	inst, err := env.workflowStore.Get(context.Background(), 1, workflow.StageEAS)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusNotStarted, inst.Status)
	assert.Empty(t, env.published.Events())
}

func TestDecideStageChangeRejectSkipsTransition(t *testing.T) {
	env := newTestEnv(t)
	req := env.addStageChange(at(0), workflow.StagePNC, workflow.StatusSkipped)

	res, err := env.router.Decide(context.Background(), approver, decideReq(KindStageChange, "1", DecisionReject, req.Token))
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	inst, err := env.workflowStore.Get(context.Background(), 1, workflow.StagePNC)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusNotStarted, inst.Status, "a rejection must not touch the stage")

	// Rejections of stage workflows still notify.
	events := env.published.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(DecisionReject), events[0].Decision)
}

func TestDecideConcurrentSameTokenExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	req := env.addStageChange(at(0), workflow.StagePNC, workflow.StatusSkipped)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.router.Decide(context.Background(), approver,
				decideReq(KindStageChange, "1", DecisionApprove, req.Token))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "goroutine %d", i)
	}

	outcomes := map[Outcome]int{}
	for _, res := range results {
		outcomes[res.Outcome]++
	}
	assert.Equal(t, 1, outcomes[OutcomeSuccess], "exactly one writer wins: %v", outcomes)
	assert.Equal(t, 1, outcomes[OutcomeAlreadyDecided], "the loser observes the conflict: %v", outcomes)
}

func TestDecideEveryKind(t *testing.T) {
	env := newTestEnv(t)
	now := at(0)
	meta := func() RequestMeta {
		return RequestMeta{ProjectID: 1, ProjectName: "Coastal Radar Upgrade", RequestedByUserID: 7, RequestedAt: now}
	}

	env.addStageChange(now, workflow.StagePNC, workflow.StatusSkipped)
	env.stores.ProjectEdits.Add(&ProjectEditRequest{RequestMeta: meta(), Changes: []FieldChange{{Field: "name", NewValue: "New"}}})
	env.stores.Plans.Add(&PlanApprovalRequest{RequestMeta: meta(), DraftPlan: []PlanStageEntry{{StageCode: "FS"}}})
	env.addDocument(now, "Feasibility Report")
	env.stores.TechTransfers.Add(&TechTransferRequest{RequestMeta: meta(), LicenseeName: "BEL", AgreementNumber: "ToT-7"})
	env.addProliferationYearly(now, "HAL", 2025)
	env.stores.ProliferationCumulative.Add(&ProliferationCumulativeRequest{RequestMeta: meta(), Source: "HAL", TotalQuantity: 900, AsOfDate: now})

	for _, kind := range AllKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			items, err := env.reader.ListPending(context.Background(), Filter{Kind: &kind})
			require.NoError(t, err)
			require.Len(t, items, 1)

			dr := DecisionRequest{
				Kind:         kind,
				RequestID:    items[0].RequestID,
				Decision:     DecisionApprove,
				VersionToken: items[0].VersionToken,
			}
			res, err := env.router.Decide(context.Background(), approver, dr)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSuccess, res.Outcome)

			items, err = env.reader.ListPending(context.Background(), Filter{Kind: &kind})
			require.NoError(t, err)
			assert.Empty(t, items, "decided requests leave the queue")
		})
	}
}

func TestDecideCancellationPropagates(t *testing.T) {
	env := newTestEnv(t)
	env.addDocument(at(0), "Feasibility Report")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.router.Decide(ctx, approver, decideReq(KindDocument, "1", DecisionApprove, NewVersionToken()))
	assert.ErrorIs(t, err, context.Canceled)
}

// erroringDocumentStore fails every operation with an infrastructure error.
type erroringDocumentStore struct{}

func (erroringDocumentStore) ListPending(ctx context.Context) ([]*DocumentRequest, error) {
	return nil, errors.New("store down")
}

func (erroringDocumentStore) Get(ctx context.Context, id int64) (*DocumentRequest, error) {
	return nil, errors.New("store down")
}

func (erroringDocumentStore) Decide(ctx context.Context, id int64, expected VersionToken, rec DecisionRecord, prepare func(*DocumentRequest) error) error {
	return errors.New("store down")
}

// panickingDocumentStore panics on read, standing in for a truly unexpected
// fault.
type panickingDocumentStore struct{ erroringDocumentStore }

func (panickingDocumentStore) Get(ctx context.Context, id int64) (*DocumentRequest, error) {
	panic("document store exploded")
}

func TestDecideUnexpectedErrorBecomesErrorOutcome(t *testing.T) {
	env := newTestEnv(t)
	stores := env.stores.Stores()
	stores.Documents = erroringDocumentStore{}
	router := NewRouter(stores, NewApproverAuthorizer("approver"), nil, nil, nil, nil)

	res, err := router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, NewVersionToken()))
	require.NoError(t, err, "infrastructure failures never escape as raw errors")
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.NotContains(t, res.Message, "store down", "internal detail must not leak")
}

func TestDecideRecoversPanics(t *testing.T) {
	env := newTestEnv(t)
	stores := env.stores.Stores()
	stores.Documents = panickingDocumentStore{}
	router := NewRouter(stores, NewApproverAuthorizer("approver"), nil, nil, nil, nil)

	res, err := router.Decide(context.Background(), approver, decideReq(KindDocument, "1", DecisionApprove, NewVersionToken()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
}
