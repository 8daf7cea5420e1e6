package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageSet(version string, codes ...string) []StageTemplate {
	stages := make([]StageTemplate, 0, len(codes))
	for i, code := range codes {
		stages = append(stages, StageTemplate{
			WorkflowVersion: version,
			Code:            code,
			DisplayName:     code,
			SequenceOrder:   i + 1,
		})
	}
	return stages
}

func TestBuildDependencyGraphGroupsEdges(t *testing.T) {
	stages := stageSet("v1", "A", "B", "C", "D")
	edges := []StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: "C", DependsOnCode: "B"},
		{WorkflowVersion: "v1", FromCode: "C", DependsOnCode: "A"},
		{WorkflowVersion: "v1", FromCode: "D", DependsOnCode: "C"},
		// Edges of another version must be ignored.
		{WorkflowVersion: "v2", FromCode: "A", DependsOnCode: "D"},
	}

	g, err := BuildDependencyGraph("v1", stages, edges)
	require.NoError(t, err)

	assert.Equal(t, "v1", g.Version())
	assert.Equal(t, []string{"A", "B"}, g.Dependencies("C"))
	assert.Equal(t, []string{"C"}, g.Dependencies("D"))
	assert.Empty(t, g.Dependencies("A"))
	assert.Empty(t, g.Dependencies("unknown"))
}

func TestBuildDependencyGraphFanOutFanIn(t *testing.T) {
	// One dependency feeding two dependents, both gating a downstream join.
	stages := stageSet("v1", "EAS", "TEC", "BM", "COB")
	edges := []StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: "TEC", DependsOnCode: "EAS"},
		{WorkflowVersion: "v1", FromCode: "BM", DependsOnCode: "EAS"},
		{WorkflowVersion: "v1", FromCode: "COB", DependsOnCode: "TEC"},
		{WorkflowVersion: "v1", FromCode: "COB", DependsOnCode: "BM"},
	}

	g, err := BuildDependencyGraph("v1", stages, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"BM", "TEC"}, g.Dependencies("COB"))
}

func TestBuildDependencyGraphRejectsCycle(t *testing.T) {
	stages := stageSet("v1", "A", "B", "C")
	edges := []StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: "A", DependsOnCode: "B"},
		{WorkflowVersion: "v1", FromCode: "B", DependsOnCode: "C"},
		{WorkflowVersion: "v1", FromCode: "C", DependsOnCode: "A"},
	}

	_, err := BuildDependencyGraph("v1", stages, edges)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestBuildDependencyGraphRejectsSelfCycle(t *testing.T) {
	stages := stageSet("v1", "A")
	edges := []StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: "A", DependsOnCode: "A"},
	}

	_, err := BuildDependencyGraph("v1", stages, edges)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestBuildDependencyGraphRejectsUnknownStage(t *testing.T) {
	stages := stageSet("v1", "A")
	edges := []StageDependencyEdge{
		{WorkflowVersion: "v1", FromCode: "A", DependsOnCode: "GHOST"},
	}

	_, err := BuildDependencyGraph("v1", stages, edges)
	assert.ErrorIs(t, err, ErrUnknownStage)
}
