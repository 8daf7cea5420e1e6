package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/thc1006/stagegate/internal/workflow"
	"github.com/thc1006/stagegate/pkg/notify"
)

// GuardDeniedError carries a stage-guard denial out of the decide path. The
// router reports it as a validation failure: the approval authorized
// attempting the transition, and the attempt was rejected by the dependency
// graph at apply time.
type GuardDeniedError struct {
	Reason string
}

func (e *GuardDeniedError) Error() string { return e.Reason }

// decideKind is the kind-generic mutation path. Checks run in the fixed
// order existence -> pending -> capability -> token; the store then repeats
// the existence/pending/token checks atomically so concurrent decisions
// resolve first-writer-wins.
func decideKind[T Request](ctx context.Context, r *Router, store RequestStore[T], actor Actor, req DecisionRequest, prepare func(T) error, after func(T)) (Result, error) {
	id, perr := strconv.ParseInt(req.RequestID, 10, 64)
	if perr != nil {
		return notFound(fmt.Sprintf("%s request %q does not exist", req.Kind, req.RequestID)), nil
	}

	row, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(fmt.Sprintf("%s request %d does not exist", req.Kind, id)), nil
		}
		return Result{}, err
	}
	if status := row.Meta().Status; status != StatusPending {
		return alreadyDecided(fmt.Sprintf("request is no longer pending (%s)", status)), nil
	}

	allowed, err := r.authz.Can(ctx, actor, req.Kind.Capability())
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		return forbidden(fmt.Sprintf("you are not authorized to decide %s requests", req.Kind)), nil
	}

	var token VersionToken
	if req.Kind.RequiresToken() {
		token, err = ParseVersionToken(req.VersionToken)
		if err != nil {
			return validationFailed("the supplied version token is missing or invalid; refresh and retry"), nil
		}
	}

	rec := DecisionRecord{
		Decision:        req.Decision,
		DecidedByUserID: actor.UserID,
		Remarks:         req.Remarks,
		DecidedAt:       r.now().UTC(),
	}
	if err := store.Decide(ctx, id, token, rec, prepare); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return notFound(fmt.Sprintf("%s request %d does not exist", req.Kind, id)), nil
		case errors.Is(err, ErrAlreadyDecided):
			return alreadyDecided("request is no longer pending"), nil
		case errors.Is(err, ErrTokenStale):
			return alreadyDecided("the request was already changed by someone else; refresh and retry"), nil
		}
		var denied *GuardDeniedError
		if errors.As(err, &denied) {
			return validationFailed(denied.Reason), nil
		}
		return Result{}, err
	}

	if after != nil {
		after(row)
	}

	if req.Decision == DecisionApprove {
		return success("request approved"), nil
	}
	return success("request rejected"), nil
}

// stageChangePrepare returns the in-transaction hook of a stage-change
// decision. Approvals re-run the stage guard and apply the transition before
// the request flips to terminal; rejections touch nothing but the request.
func (r *Router) stageChangePrepare(ctx context.Context, decision Decision) func(*StageChangeRequest) error {
	if decision != DecisionApprove {
		return nil
	}
	return func(req *StageChangeRequest) error {
		return r.applyStageTransition(ctx, req)
	}
}

func (r *Router) applyStageTransition(ctx context.Context, req *StageChangeRequest) error {
	var (
		verdict workflow.Verdict
		err     error
	)
	switch req.RequestedStatus {
	case workflow.StatusInProgress:
		verdict, err = r.transitions.Start(ctx, req.ProjectID, req.WorkflowVersion, req.StageCode, req.RequestedDate)
	case workflow.StatusCompleted:
		verdict, err = r.transitions.Complete(ctx, req.ProjectID, req.WorkflowVersion, req.StageCode, req.RequestedDate)
	case workflow.StatusSkipped:
		verdict, err = r.transitions.Skip(ctx, req.ProjectID, req.WorkflowVersion, req.StageCode)
	default:
		return &GuardDeniedError{Reason: fmt.Sprintf("stage status %s cannot be requested", req.RequestedStatus)}
	}
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		return &GuardDeniedError{Reason: verdict.Reason}
	}
	return nil
}

// publishStageEvent hands the decided stage change to the notification
// collaborator. Fire-and-forget: a publish failure is logged by the
// publisher chain and never affects the decision result.
func (r *Router) publishStageEvent(ctx context.Context, sc *StageChangeRequest, req DecisionRequest, actor Actor) {
	if r.notifier == nil {
		return
	}
	ev := notify.NewEvent(req.Kind.String(), req.RequestID, sc.ProjectID, string(req.Decision), actor.UserID)
	ev.Remarks = req.Remarks
	if err := r.notifier.Publish(ctx, ev); err != nil {
		r.logger.Warn("stage decision notification failed",
			"event_id", ev.ID,
			"request_id", req.RequestID,
			"error", err)
	}
}
