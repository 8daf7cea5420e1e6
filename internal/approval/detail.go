package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/thc1006/stagegate/internal/workflow"
)

// QueueDetail is the richer single-item view: the common projection plus the
// kind-specific payload and any auxiliary context the review screen needs.
// Exactly one of the kind payload pointers is set.
type QueueDetail struct {
	Item QueueItem `json:"item"`

	StageChange             *StageChangeDetail             `json:"stage_change,omitempty"`
	ProjectEdit             *ProjectEditDetail             `json:"project_edit,omitempty"`
	PlanApproval            *PlanApprovalDetail            `json:"plan_approval,omitempty"`
	Document                *DocumentDetail                `json:"document,omitempty"`
	TechTransfer            *TechTransferDetail            `json:"tech_transfer,omitempty"`
	ProliferationYearly     *ProliferationYearlyDetail     `json:"proliferation_yearly,omitempty"`
	ProliferationCumulative *ProliferationCumulativeDetail `json:"proliferation_cumulative,omitempty"`
}

// StageChangeDetail shows the requested transition next to the live stage
// instance, so the reviewer sees current vs. requested values.
type StageChangeDetail struct {
	StageCode       string                  `json:"stage_code"`
	RequestedStatus workflow.StageStatus    `json:"requested_status"`
	RequestedDate   *time.Time              `json:"requested_date,omitempty"`
	Current         *workflow.StageInstance `json:"current,omitempty"`
}

// ProjectEditDetail lists the proposed metadata changes.
type ProjectEditDetail struct {
	Changes []FieldChange `json:"changes"`
}

// PlanStageDiff is one row of the draft-vs-approved plan comparison.
type PlanStageDiff struct {
	StageCode string `json:"stage_code"`
	// Change is one of "added", "removed", "changed", "unchanged".
	Change        string     `json:"change"`
	ApprovedStart *time.Time `json:"approved_start,omitempty"`
	ApprovedEnd   *time.Time `json:"approved_end,omitempty"`
	DraftStart    *time.Time `json:"draft_start,omitempty"`
	DraftEnd      *time.Time `json:"draft_end,omitempty"`
}

// PlanApprovalDetail shows the draft plan and its stage-by-stage diff
// against the currently approved plan.
type PlanApprovalDetail struct {
	DraftPlan []PlanStageEntry `json:"draft_plan"`
	Diff      []PlanStageDiff  `json:"diff"`
}

// DocumentDetail describes the document awaiting moderation.
type DocumentDetail struct {
	DocumentTitle string `json:"document_title"`
	FileName      string `json:"file_name"`
	Category      string `json:"category"`
}

// TechTransferDetail describes the pending ToT agreement update.
type TechTransferDetail struct {
	LicenseeName    string `json:"licensee_name"`
	AgreementNumber string `json:"agreement_number"`
	UpdateNote      string `json:"update_note"`
}

// ProliferationYearlyDetail describes a pending yearly production record.
type ProliferationYearlyDetail struct {
	Source        string `json:"source"`
	Year          int    `json:"year"`
	TotalQuantity int64  `json:"total_quantity"`
}

// ProliferationCumulativeDetail describes a pending cumulative production
// record.
type ProliferationCumulativeDetail struct {
	Source        string    `json:"source"`
	TotalQuantity int64     `json:"total_quantity"`
	AsOfDate      time.Time `json:"as_of_date"`
}

// GetDetail loads the detail view of one request. It returns (nil, nil) when
// the id does not parse as the kind's identity or the record does not exist:
// a lookup miss, not an error.
func (r *Reader) GetDetail(ctx context.Context, kind Kind, requestID string) (*QueueDetail, error) {
	id, err := strconv.ParseInt(requestID, 10, 64)
	if err != nil {
		return nil, nil
	}

	switch kind {
	case KindStageChange:
		req, err := r.stores.StageChanges.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		detail := &StageChangeDetail{
			StageCode:       req.StageCode,
			RequestedStatus: req.RequestedStatus,
			RequestedDate:   req.RequestedDate,
		}
		// The live instance is auxiliary context; a missing instance leaves
		// the current block empty instead of failing the view.
		inst, err := r.instances.Get(ctx, req.ProjectID, req.StageCode)
		if err == nil {
			detail.Current = inst
		} else if !errors.Is(err, workflow.ErrStageNotFound) {
			return nil, fmt.Errorf("load current stage instance: %w", err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) { d.StageChange = detail })

	case KindProjectEdit:
		req, err := r.stores.ProjectEdits.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.ProjectEdit = &ProjectEditDetail{Changes: req.Changes}
		})

	case KindPlanApproval:
		req, err := r.stores.Plans.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		approved, err := r.plans.ApprovedPlan(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load approved plan of project %d: %w", req.ProjectID, err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.PlanApproval = &PlanApprovalDetail{
				DraftPlan: req.DraftPlan,
				Diff:      diffPlans(approved, req.DraftPlan),
			}
		})

	case KindDocument:
		req, err := r.stores.Documents.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.Document = &DocumentDetail{
				DocumentTitle: req.DocumentTitle,
				FileName:      req.FileName,
				Category:      req.Category,
			}
		})

	case KindTechTransfer:
		req, err := r.stores.TechTransfers.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.TechTransfer = &TechTransferDetail{
				LicenseeName:    req.LicenseeName,
				AgreementNumber: req.AgreementNumber,
				UpdateNote:      req.UpdateNote,
			}
		})

	case KindProliferationYearly:
		req, err := r.stores.ProliferationYearly.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.ProliferationYearly = &ProliferationYearlyDetail{
				Source:        req.Source,
				Year:          req.Year,
				TotalQuantity: req.TotalQuantity,
			}
		})

	case KindProliferationCumulative:
		req, err := r.stores.ProliferationCumulative.Get(ctx, id)
		if err != nil {
			return nil, missOrError(err)
		}
		return r.detailFor(ctx, req, func(d *QueueDetail) {
			d.ProliferationCumulative = &ProliferationCumulativeDetail{
				Source:        req.Source,
				TotalQuantity: req.TotalQuantity,
				AsOfDate:      req.AsOfDate,
			}
		})
	}
	return nil, fmt.Errorf("unknown approval kind %q", kind)
}

// detailFor assembles the common projection, joins the submitter name, and
// lets the caller attach the kind payload.
func (r *Reader) detailFor(ctx context.Context, req Request, attach func(*QueueDetail)) (*QueueDetail, error) {
	detail := &QueueDetail{Item: toQueueItem(req)}
	names, err := r.users.DisplayNames(ctx, []int64{detail.Item.RequestedByUserID})
	if err != nil {
		return nil, fmt.Errorf("resolve submitter name: %w", err)
	}
	detail.Item.RequestedByName = names[detail.Item.RequestedByUserID]
	attach(detail)
	return detail, nil
}

// missOrError maps a store miss to the (nil, nil) lookup-miss contract and
// passes everything else through.
func missOrError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// diffPlans compares the currently approved plan against a draft, stage by
// stage. Rows are ordered by stage code for a stable view.
func diffPlans(approved, draft []PlanStageEntry) []PlanStageDiff {
	approvedBy := make(map[string]PlanStageEntry, len(approved))
	for _, e := range approved {
		approvedBy[e.StageCode] = e
	}
	draftBy := make(map[string]PlanStageEntry, len(draft))
	for _, e := range draft {
		draftBy[e.StageCode] = e
	}

	codes := make([]string, 0, len(approvedBy)+len(draftBy))
	for code := range approvedBy {
		codes = append(codes, code)
	}
	for code := range draftBy {
		if _, ok := approvedBy[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	diffs := make([]PlanStageDiff, 0, len(codes))
	for _, code := range codes {
		cur, inApproved := approvedBy[code]
		d, inDraft := draftBy[code]
		row := PlanStageDiff{StageCode: code}
		switch {
		case inApproved && !inDraft:
			row.Change = "removed"
			row.ApprovedStart, row.ApprovedEnd = cur.PlannedStart, cur.PlannedEnd
		case !inApproved && inDraft:
			row.Change = "added"
			row.DraftStart, row.DraftEnd = d.PlannedStart, d.PlannedEnd
		default:
			row.ApprovedStart, row.ApprovedEnd = cur.PlannedStart, cur.PlannedEnd
			row.DraftStart, row.DraftEnd = d.PlannedStart, d.PlannedEnd
			if sameDate(cur.PlannedStart, d.PlannedStart) && sameDate(cur.PlannedEnd, d.PlannedEnd) {
				row.Change = "unchanged"
			} else {
				row.Change = "changed"
			}
		}
		diffs = append(diffs, row)
	}
	return diffs
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
