// Command stagegate serves the stage-dependency guard and approval-decision
// engine over HTTP, backed by in-memory stores seeded with a demo workflow.
// Production deployments embed the engine packages behind their own stores
// and handlers; this binary is the reference wiring.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thc1006/stagegate/internal/api"
	"github.com/thc1006/stagegate/internal/approval"
	"github.com/thc1006/stagegate/internal/config"
	"github.com/thc1006/stagegate/internal/workflow"
	"github.com/thc1006/stagegate/pkg/logging"
	"github.com/thc1006/stagegate/pkg/monitoring"
	"github.com/thc1006/stagegate/pkg/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stagegate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewRecorder(registry)

	workflowStore := workflow.NewMemoryStore()
	stores := approval.NewMemoryStores()
	users := seedDemoData(workflowStore, stores)

	graphs := workflow.NewGraphCache(workflowStore, workflowStore)
	graphs.OnLoad(metrics.RecordGraphLoad)
	transitions := workflow.NewTransitionService(graphs, workflowStore, logger)

	var publisher notify.Publisher
	if cfg.Notifier.Enabled {
		publisher = notify.NewBreakerPublisher(notify.NewLogPublisher(logger), cfg.Notifier.Breaker, logger)
	}

	authz := approval.NewApproverAuthorizer(cfg.ApproverRoles...)
	reader := approval.NewReader(stores.Stores(), users, workflowStore, approval.NewMemoryPlanStore(), logger)
	reader.SetMetrics(metrics)
	router := approval.NewRouter(stores.Stores(), authz, transitions, publisher, metrics, logger)

	server := api.NewServer(reader, router, registry, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// seedDemoData loads one workflow version, one project and a handful of
// pending requests so the queue is browsable out of the box.
func seedDemoData(ws *workflow.MemoryStore, stores *approval.MemoryStores) approval.UserDirectory {
	const version = "v1"
	const projectID = 101

	stages := []workflow.StageTemplate{
		{WorkflowVersion: version, Code: "FS", DisplayName: "Feasibility Study", SequenceOrder: 1},
		{WorkflowVersion: version, Code: workflow.StagePNC, DisplayName: "Pre-Negotiation Committee", SequenceOrder: 2, IsOptional: true},
		{WorkflowVersion: version, Code: workflow.StageEAS, DisplayName: "Estimate & Sanction", SequenceOrder: 3},
		{WorkflowVersion: version, Code: workflow.StageTEC, DisplayName: "Technical Evaluation", SequenceOrder: 4, ParallelGroup: "eval"},
		{WorkflowVersion: version, Code: workflow.StageBM, DisplayName: "Benchmarking", SequenceOrder: 5, ParallelGroup: "eval"},
		{WorkflowVersion: version, Code: workflow.StageCOB, DisplayName: "Commercial Opening of Bids", SequenceOrder: 6},
	}
	edges := []workflow.StageDependencyEdge{
		{WorkflowVersion: version, FromCode: workflow.StageEAS, DependsOnCode: "FS"},
		{WorkflowVersion: version, FromCode: workflow.StageTEC, DependsOnCode: workflow.StageEAS},
		{WorkflowVersion: version, FromCode: workflow.StageBM, DependsOnCode: workflow.StageEAS},
		{WorkflowVersion: version, FromCode: workflow.StageCOB, DependsOnCode: workflow.StageTEC},
		{WorkflowVersion: version, FromCode: workflow.StageCOB, DependsOnCode: workflow.StageBM},
	}
	ws.SeedVersion(version, stages, edges)

	now := time.Now().UTC()
	started := now.Add(-30 * 24 * time.Hour)
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: "FS", Status: workflow.StatusCompleted, ActualStartDate: &started, CompletedOnDate: &now})
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: workflow.StagePNC, Status: workflow.StatusNotStarted})
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: workflow.StageEAS, Status: workflow.StatusNotStarted})
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: workflow.StageTEC, Status: workflow.StatusNotStarted})
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: workflow.StageBM, Status: workflow.StatusNotStarted})
	ws.SeedInstance(workflow.StageInstance{ProjectID: projectID, StageCode: workflow.StageCOB, Status: workflow.StatusNotStarted})

	stores.StageChanges.Add(&approval.StageChangeRequest{
		RequestMeta: approval.RequestMeta{
			ProjectID:         projectID,
			ProjectName:       "Coastal Radar Upgrade",
			RequestedByUserID: 7,
			RequestedAt:       now.Add(-2 * time.Hour),
			ModuleTag:         "stages",
		},
		WorkflowVersion: version,
		StageCode:       workflow.StagePNC,
		RequestedStatus: workflow.StatusSkipped,
	})
	stores.Documents.Add(&approval.DocumentRequest{
		RequestMeta: approval.RequestMeta{
			ProjectID:         projectID,
			ProjectName:       "Coastal Radar Upgrade",
			RequestedByUserID: 9,
			RequestedAt:       now.Add(-1 * time.Hour),
			ModuleTag:         "documents",
		},
		DocumentTitle: "Feasibility Report",
		FileName:      "feasibility-report.pdf",
		Category:      "reports",
	})

	return approval.NewMemoryUserDirectory(map[int64]string{
		7: "R. Sharma",
		9: "A. Iyer",
	})
}
