package approval

import (
	"context"
	"sync"
	"time"

	"github.com/thc1006/stagegate/internal/workflow"
	"github.com/thc1006/stagegate/pkg/notify"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *capturePublisher) Publish(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type testEnv struct {
	workflowStore *workflow.MemoryStore
	stores        *MemoryStores
	users         *MemoryUserDirectory
	plans         *MemoryPlanStore
	published     *capturePublisher
	reader        *Reader
	router        *Router
}

// approver is the default acting user of the router tests.
var approver = Actor{UserID: 1, DisplayName: "Approver One", Roles: []string{"approver"}}

// newTestEnv seeds the canonical six-stage workflow for project 1, every
// stage not started, and wires a full reader/router pair over in-memory
// stores. The parameter is wide enough for both *testing.T and GinkgoT().
func newTestEnv(t interface{ Helper() }) *testEnv {
	t.Helper()

	ws := workflow.NewMemoryStore()
	stages := []workflow.StageTemplate{
		{WorkflowVersion: "v1", Code: "FS", DisplayName: "Feasibility Study", SequenceOrder: 1},
		{WorkflowVersion: "v1", Code: workflow.StagePNC, DisplayName: "Pre-Negotiation Committee", SequenceOrder: 2, IsOptional: true},
		{WorkflowVersion: "v1", Code: workflow.StageEAS, DisplayName: "Estimate & Sanction", SequenceOrder: 3},
		{WorkflowVersion: "v1", Code: workflow.StageTEC, DisplayName: "Technical Evaluation", SequenceOrder: 4, ParallelGroup: "eval"},
		{WorkflowVersion: "v1", Code: workflow.StageBM, DisplayName: "Benchmarking", SequenceOrder: 5, ParallelGroup: "eval"},
		{WorkflowVersion: "v1", Code: workflow.StageCOB, DisplayName: "Commercial Opening of Bids", SequenceOrder: 6},
	}
	edges := []workflow.StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: workflow.StageEAS, DependsOnCode: "FS"},
		{WorkflowVersion: "v1", FromCode: workflow.StageTEC, DependsOnCode: workflow.StageEAS},
		{WorkflowVersion: "v1", FromCode: workflow.StageBM, DependsOnCode: workflow.StageEAS},
		{WorkflowVersion: "v1", FromCode: workflow.StageCOB, DependsOnCode: workflow.StageTEC},
		{WorkflowVersion: "v1", FromCode: workflow.StageCOB, DependsOnCode: workflow.StageBM},
	}
	ws.SeedVersion("v1", stages, edges)
	for _, st := range stages {
		ws.SeedInstance(workflow.StageInstance{ProjectID: 1, StageCode: st.Code, Status: workflow.StatusNotStarted})
	}

	stores := NewMemoryStores()
	users := NewMemoryUserDirectory(map[int64]string{
		7: "Asha Rao",
		9: "Vikram Nair",
	})
	plans := NewMemoryPlanStore()
	published := &capturePublisher{}

	graphs := workflow.NewGraphCache(ws, ws)
	transitions := workflow.NewTransitionService(graphs, ws, nil)
	authz := NewApproverAuthorizer("approver")

	return &testEnv{
		workflowStore: ws,
		stores:        stores,
		users:         users,
		plans:         plans,
		published:     published,
		reader:        NewReader(stores.Stores(), users, ws, plans, nil),
		router:        NewRouter(stores.Stores(), authz, transitions, published, nil, nil),
	}
}

func at(offset time.Duration) time.Time {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(offset)
}

func (e *testEnv) addStageChange(requestedAt time.Time, stageCode string, status workflow.StageStatus) *StageChangeRequest {
	req := &StageChangeRequest{
		RequestMeta: RequestMeta{
			ProjectID:         1,
			ProjectName:       "Coastal Radar Upgrade",
			RequestedByUserID: 7,
			RequestedAt:       requestedAt,
			ModuleTag:         "stages",
		},
		WorkflowVersion: "v1",
		StageCode:       stageCode,
		RequestedStatus: status,
	}
	e.stores.StageChanges.Add(req)
	return req
}

func (e *testEnv) addDocument(requestedAt time.Time, title string) *DocumentRequest {
	req := &DocumentRequest{
		RequestMeta: RequestMeta{
			ProjectID:         1,
			ProjectName:       "Coastal Radar Upgrade",
			RequestedByUserID: 9,
			RequestedAt:       requestedAt,
			ModuleTag:         "documents",
		},
		DocumentTitle: title,
		FileName:      "upload.pdf",
		Category:      "reports",
	}
	e.stores.Documents.Add(req)
	return req
}

func (e *testEnv) addProliferationYearly(requestedAt time.Time, source string, year int) *ProliferationYearlyRequest {
	req := &ProliferationYearlyRequest{
		RequestMeta: RequestMeta{
			ProjectID:         1,
			ProjectName:       "Coastal Radar Upgrade",
			RequestedByUserID: 7,
			RequestedAt:       requestedAt,
			ModuleTag:         "proliferation",
		},
		Source:        source,
		Year:          year,
		TotalQuantity: 250,
	}
	e.stores.ProliferationYearly.Add(req)
	return req
}
