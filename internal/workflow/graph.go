package workflow

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCyclicDependency is returned when the dependency edges of a workflow
// version do not form a DAG.
var ErrCyclicDependency = errors.New("cyclic stage dependency")

// ErrUnknownStage is returned when a dependency edge references a stage code
// that is not part of the workflow version's template set.
var ErrUnknownStage = errors.New("unknown stage code in dependency edge")

// DependencyGraph is the precomputed dependency map of one workflow version:
// stage code -> the stage codes it depends on. It is immutable after build.
type DependencyGraph struct {
	version string
	deps    map[string][]string
}

// BuildDependencyGraph groups the dependency edges of one workflow version by
// their from-code and validates the result. Stage templates are used to
// reject edges that reference codes outside the version; acyclicity is
// checked here rather than trusted from seed data, so a bad template version
// fails at load time instead of deadlocking projects at runtime.
func BuildDependencyGraph(version string, stages []StageTemplate, edges []StageDependencyEdge) (*DependencyGraph, error) {
	known := make(map[string]bool, len(stages))
	for _, st := range stages {
		known[st.Code] = true
	}

	deps := make(map[string][]string)
	for _, e := range edges {
		if e.WorkflowVersion != version {
			continue
		}
		if !known[e.FromCode] {
			return nil, fmt.Errorf("%w: %q (version %s)", ErrUnknownStage, e.FromCode, version)
		}
		if !known[e.DependsOnCode] {
			return nil, fmt.Errorf("%w: %q (version %s)", ErrUnknownStage, e.DependsOnCode, version)
		}
		deps[e.FromCode] = append(deps[e.FromCode], e.DependsOnCode)
	}

	// Deterministic order keeps guard denial messages stable.
	for code := range deps {
		sort.Strings(deps[code])
	}

	if cycle := findCycle(deps); cycle != "" {
		return nil, fmt.Errorf("%w: involving stage %q (version %s)", ErrCyclicDependency, cycle, version)
	}

	return &DependencyGraph{version: version, deps: deps}, nil
}

// Version returns the workflow version the graph was built for.
func (g *DependencyGraph) Version() string { return g.version }

// Dependencies returns the stage codes the given stage depends on. The
// returned slice is empty when the stage declares no dependencies; callers
// must not mutate it.
func (g *DependencyGraph) Dependencies(code string) []string {
	return g.deps[code]
}

// findCycle runs a three-color depth-first search over the dependency map and
// returns one stage code involved in a cycle, or "" when the map is acyclic.
func findCycle(deps map[string][]string) string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(deps))

	var visit func(code string) string
	visit = func(code string) string {
		color[code] = gray
		for _, dep := range deps[code] {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		color[code] = black
		return ""
	}

	// Sorted roots make the reported cycle member deterministic.
	roots := make([]string, 0, len(deps))
	for code := range deps {
		roots = append(roots, code)
	}
	sort.Strings(roots)

	for _, code := range roots {
		if color[code] == white {
			if c := visit(code); c != "" {
				return c
			}
		}
	}
	return ""
}
