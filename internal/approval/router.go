package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/thc1006/stagegate/internal/workflow"
	"github.com/thc1006/stagegate/pkg/monitoring"
	"github.com/thc1006/stagegate/pkg/notify"
)

// DecisionRequest is the caller's instruction to decide one pending request.
type DecisionRequest struct {
	Kind      Kind     `json:"kind"`
	RequestID string   `json:"request_id"`
	Decision  Decision `json:"decision"`
	// Remarks are required for rejections and optional for approvals.
	Remarks string `json:"remarks,omitempty"`
	// VersionToken must echo the stamp the caller last read, for kinds that
	// carry one.
	VersionToken string `json:"version_token,omitempty"`
}

// Router is the unified decision engine: it authorizes the actor, dispatches
// to the kind-specific mutation, and normalizes every possible outcome into
// the Result taxonomy. Callers receive a non-nil error only for context
// cancellation; everything else, including panics, becomes a Result.
type Router struct {
	stores      Stores
	authz       Authorizer
	transitions *workflow.TransitionService
	notifier    notify.Publisher
	metrics     *monitoring.Recorder
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewRouter wires the decision router. notifier and metrics may be nil.
func NewRouter(stores Stores, authz Authorizer, transitions *workflow.TransitionService, notifier notify.Publisher, metrics *monitoring.Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		stores:      stores,
		authz:       authz,
		transitions: transitions,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger.With("component", "approval-router"),
		tracer:      otel.Tracer("stagegate/approval"),
		now:         time.Now,
	}
}

// Decide applies one approve/reject decision. The fixed check order is:
// actor authentication and base capability, rejection remarks, then per kind
// existence -> pending status -> kind capability -> concurrency token, so the
// caller always learns the most specific actionable reason for a failure.
func (r *Router) Decide(ctx context.Context, actor Actor, req DecisionRequest) (result Result, err error) {
	ctx, span := r.tracer.Start(ctx, "approval.decide", trace.WithAttributes(
		attribute.String("approval.kind", req.Kind.String()),
		attribute.String("approval.request_id", req.RequestID),
	))
	defer span.End()

	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while deciding approval request",
				"kind", req.Kind,
				"request_id", req.RequestID,
				"panic", fmt.Sprint(p))
			result = internalError("an internal error occurred; the failure has been logged")
			err = nil
		}
		if err == nil {
			span.SetAttributes(attribute.String("approval.outcome", result.Outcome.String()))
			r.metrics.RecordDecision(req.Kind.String(), result.Outcome.String(), r.now().Sub(start))
		}
	}()

	if !actor.Authenticated() {
		return forbidden("authentication required"), nil
	}
	allowed, err := r.authz.Can(ctx, actor, CapDecideApprovals)
	if err != nil {
		return r.recoverFailure(req, err)
	}
	if !allowed {
		return forbidden("you are not authorized to decide approval requests"), nil
	}

	if req.Decision != DecisionApprove && req.Decision != DecisionReject {
		return validationFailed(fmt.Sprintf("unknown decision %q", req.Decision)), nil
	}
	if req.Decision == DecisionReject && strings.TrimSpace(req.Remarks) == "" {
		return validationFailed("rejection requires remarks"), nil
	}

	result, err = r.dispatch(ctx, actor, req)
	if err != nil {
		return r.recoverFailure(req, err)
	}
	return result, nil
}

// dispatch routes to exactly one kind-specific mutation. The switch is
// exhaustive over the kind set.
func (r *Router) dispatch(ctx context.Context, actor Actor, req DecisionRequest) (Result, error) {
	switch req.Kind {
	case KindStageChange:
		return decideKind(ctx, r, r.stores.StageChanges, actor, req,
			r.stageChangePrepare(ctx, req.Decision),
			func(sc *StageChangeRequest) { r.publishStageEvent(ctx, sc, req, actor) })
	case KindProjectEdit:
		return decideKind(ctx, r, r.stores.ProjectEdits, actor, req, nil, nil)
	case KindPlanApproval:
		return decideKind(ctx, r, r.stores.Plans, actor, req, nil, nil)
	case KindDocument:
		return decideKind(ctx, r, r.stores.Documents, actor, req, nil, nil)
	case KindTechTransfer:
		return decideKind(ctx, r, r.stores.TechTransfers, actor, req, nil, nil)
	case KindProliferationYearly:
		return decideKind(ctx, r, r.stores.ProliferationYearly, actor, req, nil, nil)
	case KindProliferationCumulative:
		return decideKind(ctx, r, r.stores.ProliferationCumulative, actor, req, nil, nil)
	}
	return validationFailed(fmt.Sprintf("unknown approval kind %q", req.Kind)), nil
}

// recoverFailure converts an unexpected error into the generic Error outcome,
// except for cancellation, which must reach the caller as a plain error so it
// can tell "cancelled" apart from "completed with a failure result".
func (r *Router) recoverFailure(req DecisionRequest, err error) (Result, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}
	r.logger.Error("approval decision failed",
		"kind", req.Kind,
		"request_id", req.RequestID,
		"error", err)
	return internalError("an internal error occurred; the failure has been logged"), nil
}
