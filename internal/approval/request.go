package approval

import (
	"fmt"
	"strconv"
	"time"

	"github.com/thc1006/stagegate/internal/workflow"
)

// RequestMeta carries the fields common to every approval request kind.
// Request IDs are kind-local: the same numeric id may exist under two
// different kinds.
type RequestMeta struct {
	ID                int64          `json:"id"`
	ProjectID         int64          `json:"project_id"`
	ProjectName       string         `json:"project_name"`
	RequestedByUserID int64          `json:"requested_by_user_id"`
	RequestedAt       time.Time      `json:"requested_at"`
	ModuleTag         string         `json:"module_tag"`
	Status            DecisionStatus `json:"status"`

	// Token is the optimistic-concurrency stamp; zero for kinds that do not
	// support optimistic locking.
	Token VersionToken `json:"token,omitempty"`

	// Decision fields, set exactly once when the request leaves Pending.
	Remarks         string     `json:"remarks,omitempty"`
	DecidedByUserID int64      `json:"decided_by_user_id,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// Meta returns the embedded common fields; it is the accessor the generic
// store and router plumbing works through.
func (m *RequestMeta) Meta() *RequestMeta { return m }

// Request is the interface every concrete approval request kind satisfies.
type Request interface {
	Meta() *RequestMeta
	Kind() Kind
	// Summary is the one-line human description shown in the queue.
	Summary() string
	// SearchFields returns the kind-appropriate values the free-text queue
	// search matches against, in addition to the common fields.
	SearchFields() []string
	// Clone returns a detached copy. Stores hand out clones so readers never
	// share row memory with a concurrent Decide.
	Clone() Request
}

// StageChangeRequest asks to transition one stage of a project. Approving it
// only authorizes attempting the transition; the stage guard re-validates the
// dependency graph at apply time.
type StageChangeRequest struct {
	RequestMeta

	WorkflowVersion string               `json:"workflow_version"`
	StageCode       string               `json:"stage_code"`
	RequestedStatus workflow.StageStatus `json:"requested_status"`
	RequestedDate   *time.Time           `json:"requested_date,omitempty"`
}

func (r *StageChangeRequest) Kind() Kind { return KindStageChange }

func (r *StageChangeRequest) Summary() string {
	return fmt.Sprintf("Change stage %s to %s", r.StageCode, r.RequestedStatus)
}

func (r *StageChangeRequest) SearchFields() []string {
	return []string{r.StageCode, r.RequestedStatus.String()}
}

func (r *StageChangeRequest) Clone() Request {
	c := *r
	return &c
}

// FieldChange is one proposed metadata edit.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ProjectEditRequest asks to change project metadata fields.
type ProjectEditRequest struct {
	RequestMeta

	Changes []FieldChange `json:"changes"`
}

func (r *ProjectEditRequest) Kind() Kind { return KindProjectEdit }

func (r *ProjectEditRequest) Summary() string {
	if len(r.Changes) == 1 {
		return fmt.Sprintf("Edit project field %s", r.Changes[0].Field)
	}
	return fmt.Sprintf("Edit %d project fields", len(r.Changes))
}

func (r *ProjectEditRequest) SearchFields() []string {
	fields := make([]string, 0, len(r.Changes)*2)
	for _, c := range r.Changes {
		fields = append(fields, c.Field, c.NewValue)
	}
	return fields
}

func (r *ProjectEditRequest) Clone() Request {
	c := *r
	c.Changes = append([]FieldChange(nil), r.Changes...)
	return &c
}

// PlanStageEntry is one row of a project plan: the planned window of one
// stage.
type PlanStageEntry struct {
	StageCode    string     `json:"stage_code"`
	PlannedStart *time.Time `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty"`
}

// PlanApprovalRequest asks to replace the currently approved project plan
// with a draft.
type PlanApprovalRequest struct {
	RequestMeta

	DraftPlan []PlanStageEntry `json:"draft_plan"`
}

func (r *PlanApprovalRequest) Kind() Kind { return KindPlanApproval }

func (r *PlanApprovalRequest) Summary() string {
	return fmt.Sprintf("Approve project plan draft covering %d stages", len(r.DraftPlan))
}

func (r *PlanApprovalRequest) SearchFields() []string {
	fields := make([]string, 0, len(r.DraftPlan))
	for _, e := range r.DraftPlan {
		fields = append(fields, e.StageCode)
	}
	return fields
}

func (r *PlanApprovalRequest) Clone() Request {
	c := *r
	c.DraftPlan = append([]PlanStageEntry(nil), r.DraftPlan...)
	return &c
}

// DocumentRequest asks to publish an uploaded project document.
type DocumentRequest struct {
	RequestMeta

	DocumentTitle string `json:"document_title"`
	FileName      string `json:"file_name"`
	Category      string `json:"category"`
}

func (r *DocumentRequest) Kind() Kind { return KindDocument }

func (r *DocumentRequest) Summary() string {
	return fmt.Sprintf("Publish document %q (%s)", r.DocumentTitle, r.Category)
}

func (r *DocumentRequest) SearchFields() []string {
	return []string{r.DocumentTitle, r.FileName, r.Category}
}

func (r *DocumentRequest) Clone() Request {
	c := *r
	return &c
}

// TechTransferRequest asks to record an update to a technology-transfer
// agreement.
type TechTransferRequest struct {
	RequestMeta

	LicenseeName    string `json:"licensee_name"`
	AgreementNumber string `json:"agreement_number"`
	UpdateNote      string `json:"update_note"`
}

func (r *TechTransferRequest) Kind() Kind { return KindTechTransfer }

func (r *TechTransferRequest) Summary() string {
	return fmt.Sprintf("Update ToT agreement %s (%s)", r.AgreementNumber, r.LicenseeName)
}

func (r *TechTransferRequest) SearchFields() []string {
	return []string{r.LicenseeName, r.AgreementNumber, r.UpdateNote}
}

func (r *TechTransferRequest) Clone() Request {
	c := *r
	return &c
}

// ProliferationYearlyRequest asks to record the quantity produced under a
// transferred technology in one year.
type ProliferationYearlyRequest struct {
	RequestMeta

	Source        string `json:"source"`
	Year          int    `json:"year"`
	TotalQuantity int64  `json:"total_quantity"`
}

func (r *ProliferationYearlyRequest) Kind() Kind { return KindProliferationYearly }

func (r *ProliferationYearlyRequest) Summary() string {
	return fmt.Sprintf("Record %d units from %s in %d", r.TotalQuantity, r.Source, r.Year)
}

func (r *ProliferationYearlyRequest) SearchFields() []string {
	return []string{r.Source, strconv.Itoa(r.Year), strconv.FormatInt(r.TotalQuantity, 10)}
}

func (r *ProliferationYearlyRequest) Clone() Request {
	c := *r
	return &c
}

// ProliferationCumulativeRequest asks to record the cumulative quantity
// produced under a transferred technology as of a date.
type ProliferationCumulativeRequest struct {
	RequestMeta

	Source        string    `json:"source"`
	TotalQuantity int64     `json:"total_quantity"`
	AsOfDate      time.Time `json:"as_of_date"`
}

func (r *ProliferationCumulativeRequest) Kind() Kind { return KindProliferationCumulative }

func (r *ProliferationCumulativeRequest) Summary() string {
	return fmt.Sprintf("Record cumulative %d units from %s", r.TotalQuantity, r.Source)
}

func (r *ProliferationCumulativeRequest) SearchFields() []string {
	return []string{r.Source, strconv.FormatInt(r.TotalQuantity, 10)}
}

func (r *ProliferationCumulativeRequest) Clone() Request {
	c := *r
	return &c
}
