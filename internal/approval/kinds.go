package approval

import "fmt"

// Kind identifies one of the seven structurally distinct pending-change
// categories routed through the decision engine. Every dispatch on Kind is an
// exhaustive switch so that adding an eighth kind fails loudly at compile
// review time instead of silently falling through.
type Kind string

const (
	KindStageChange             Kind = "stage-change"
	KindProjectEdit             Kind = "project-edit"
	KindPlanApproval            Kind = "plan-approval"
	KindDocument                Kind = "document"
	KindTechTransfer            Kind = "tech-transfer"
	KindProliferationYearly     Kind = "proliferation-yearly"
	KindProliferationCumulative Kind = "proliferation-cumulative"
)

// AllKinds returns every kind in the fixed internal enumeration order. Queue
// assembly iterates this order; the merged queue is re-sorted by request time
// afterwards, so this order is never observable to callers.
func AllKinds() []Kind {
	return []Kind{
		KindStageChange,
		KindProjectEdit,
		KindPlanApproval,
		KindDocument,
		KindTechTransfer,
		KindProliferationYearly,
		KindProliferationCumulative,
	}
}

// ParseKind converts the wire form of a kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindStageChange, KindProjectEdit, KindPlanApproval, KindDocument,
		KindTechTransfer, KindProliferationYearly, KindProliferationCumulative:
		return k, nil
	}
	return "", fmt.Errorf("unknown approval kind %q", s)
}

// String returns the wire form of the kind.
func (k Kind) String() string { return string(k) }

// RequiresToken reports whether the kind carries an optimistic-concurrency
// token. Stage changes and the record-style kinds are token-guarded; project
// metadata edits and plan drafts are decided on pending status alone.
func (k Kind) RequiresToken() bool {
	switch k {
	case KindStageChange, KindDocument, KindTechTransfer,
		KindProliferationYearly, KindProliferationCumulative:
		return true
	case KindProjectEdit, KindPlanApproval:
		return false
	}
	return false
}

// Capability is a named permission checked against the acting user's roles.
type Capability string

const (
	// CapDecideApprovals is the base capability gating access to the
	// decision engine at all.
	CapDecideApprovals Capability = "approvals:decide"

	CapDecideStageChange             Capability = "approvals:stage-change"
	CapDecideProjectEdit             Capability = "approvals:project-edit"
	CapDecidePlanApproval            Capability = "approvals:plan-approval"
	CapDecideDocument                Capability = "approvals:document"
	CapDecideTechTransfer            Capability = "approvals:tech-transfer"
	CapDecideProliferationYearly     Capability = "approvals:proliferation-yearly"
	CapDecideProliferationCumulative Capability = "approvals:proliferation-cumulative"
)

// Capability returns the kind-specific decide capability.
func (k Kind) Capability() Capability {
	switch k {
	case KindStageChange:
		return CapDecideStageChange
	case KindProjectEdit:
		return CapDecideProjectEdit
	case KindPlanApproval:
		return CapDecidePlanApproval
	case KindDocument:
		return CapDecideDocument
	case KindTechTransfer:
		return CapDecideTechTransfer
	case KindProliferationYearly:
		return CapDecideProliferationYearly
	case KindProliferationCumulative:
		return CapDecideProliferationCumulative
	}
	return CapDecideApprovals
}

// DecisionStatus is the kind-local lifecycle status of a request, normalized
// across all seven kinds. A request transitions exactly once from Pending to
// a terminal state and is never re-opened.
type DecisionStatus string

const (
	StatusPending  DecisionStatus = "PENDING"
	StatusApproved DecisionStatus = "APPROVED"
	StatusRejected DecisionStatus = "REJECTED"
	// StatusSuperseded marks a plan draft replaced by a newer submission
	// before it was decided.
	StatusSuperseded DecisionStatus = "SUPERSEDED"
)

// String returns the string representation of the status.
func (s DecisionStatus) String() string { return string(s) }

// Terminal reports whether the status can no longer change.
func (s DecisionStatus) Terminal() bool { return s != StatusPending }

// Decision is the reviewer's verdict on one pending request.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision converts the wire form of a decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}
