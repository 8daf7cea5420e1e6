package approval

import "context"

// RoleAuthorizer is a static role -> capability grant table. The surrounding
// application performs authentication and attaches the actor's roles; this
// core only answers whether those roles carry a capability.
type RoleAuthorizer struct {
	grants map[string]map[Capability]bool
}

// NewRoleAuthorizer builds an authorizer from a role -> capabilities table.
func NewRoleAuthorizer(grants map[string][]Capability) *RoleAuthorizer {
	ra := &RoleAuthorizer{grants: make(map[string]map[Capability]bool, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		ra.grants[role] = set
	}
	return ra
}

// NewApproverAuthorizer grants every decide capability to each of the given
// roles. This matches the fixed approver role set the decision router gates
// on.
func NewApproverAuthorizer(roles ...string) *RoleAuthorizer {
	all := []Capability{
		CapDecideApprovals,
		CapDecideStageChange,
		CapDecideProjectEdit,
		CapDecidePlanApproval,
		CapDecideDocument,
		CapDecideTechTransfer,
		CapDecideProliferationYearly,
		CapDecideProliferationCumulative,
	}
	grants := make(map[string][]Capability, len(roles))
	for _, role := range roles {
		grants[role] = all
	}
	return NewRoleAuthorizer(grants)
}

// Can implements Authorizer.
func (ra *RoleAuthorizer) Can(ctx context.Context, actor Actor, cap Capability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, role := range actor.Roles {
		if ra.grants[role][cap] {
			return true, nil
		}
	}
	return false, nil
}
