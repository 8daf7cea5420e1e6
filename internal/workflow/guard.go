package workflow

import "fmt"

// Verdict is the outcome of one guard predicate: either the transition is
// allowed, or it is denied with a human-readable reason naming the blocking
// stage or rule.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Verdict { return Verdict{Allowed: true} }

func deny(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CanStart decides whether the given stage may move from NotStarted to
// InProgress. A stage may start only when every dependency declared in the
// graph exists in the snapshot and is completed or skipped.
func CanStart(graph *DependencyGraph, snap Snapshot, code string) Verdict {
	status, ok := snap.Status(code)
	if !ok {
		return deny("stage %s does not exist for this project", code)
	}
	if status != StatusNotStarted {
		return deny("stage %s cannot start: current status is %s", code, status)
	}

	for _, dep := range graph.Dependencies(code) {
		depStatus, ok := snap.Status(dep)
		if !ok {
			return deny("stage %s cannot start: dependency %s does not exist for this project", code, dep)
		}
		if !depStatus.Resolved() {
			return deny("stage %s cannot start: dependency %s is %s", code, dep, depStatus)
		}
	}

	if code == StageEAS {
		if v := pncResolved(snap, code, "start"); !v.Allowed {
			return v
		}
	}
	return allow()
}

// CanComplete decides whether the given stage may move from InProgress to
// Completed.
func CanComplete(graph *DependencyGraph, snap Snapshot, code string) Verdict {
	status, ok := snap.Status(code)
	if !ok {
		return deny("stage %s does not exist for this project", code)
	}
	if status != StatusInProgress {
		return deny("stage %s cannot complete: current status is %s", code, status)
	}

	// COB is the join of the TEC/BM parallel pair: both must be fully
	// completed, a skip is not enough.
	if code == StageCOB {
		for _, dep := range []string{StageTEC, StageBM} {
			depStatus, ok := snap.Status(dep)
			if !ok || depStatus != StatusCompleted {
				return deny("stage %s cannot complete: stage %s must be completed first", code, dep)
			}
		}
	}

	if code == StageEAS {
		if v := pncResolved(snap, code, "complete"); !v.Allowed {
			return v
		}
	}
	return allow()
}

// CanSkip decides whether the given stage may move to Skipped. Skipping is a
// privilege of the optional PNC stage alone.
func CanSkip(graph *DependencyGraph, snap Snapshot, code string) Verdict {
	if code != StagePNC {
		return deny("stage %s is not skippable", code)
	}
	status, ok := snap.Status(code)
	if !ok {
		return deny("stage %s does not exist for this project", code)
	}
	if status == StatusCompleted || status == StatusSkipped {
		return deny("stage %s cannot be skipped: current status is %s", code, status)
	}
	return allow()
}

// pncResolved enforces the EAS special case: PNC is optional and may be
// skipped, but while it exists and is unresolved it still blocks EAS.
func pncResolved(snap Snapshot, code, action string) Verdict {
	pncStatus, ok := snap.Status(StagePNC)
	if ok && !pncStatus.Resolved() {
		return deny("stage %s cannot %s: stage %s is %s and must be completed or skipped first",
			code, action, StagePNC, pncStatus)
	}
	return allow()
}
