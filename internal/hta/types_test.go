package hta

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree() *Tree {
	tree := NewTree("tree-1", "proj-1", "general", "Learn the cello", nil, GoalCharacteristics{
		ComplexityClass:  ComplexityMedium,
		RecommendedDepth: MaxDepth,
	})
	tree.FrontierTasks = []Task{
		{ID: 1, Title: "Rent an instrument", Difficulty: 1},
		{ID: 2, Title: "First bowing exercises", Difficulty: 2},
	}
	return tree
}

func TestMarkCompletedIsWriteOnce(t *testing.T) {
	tree := newTree()

	ok := tree.MarkCompleted(1, CompletionRecord{Quality: 5})
	require.True(t, ok)
	task, found := tree.Task(1)
	require.True(t, found)
	assert.True(t, task.Completed)
	require.NotNil(t, task.Completion)
	assert.Equal(t, 1, task.Completion.TaskID)

	ok = tree.MarkCompleted(1, CompletionRecord{Quality: 1})
	assert.False(t, ok)
	assert.Equal(t, 5, task.Completion.Quality)
}

func TestMarkCompletedUnknownTask(t *testing.T) {
	tree := newTree()
	assert.False(t, tree.MarkCompleted(42, CompletionRecord{}))
}

func TestNextTaskIDIsMonotonic(t *testing.T) {
	tree := newTree()
	assert.Equal(t, 3, tree.NextTaskID())

	tree.FrontierTasks = append(tree.FrontierTasks, Task{ID: 10})
	assert.Equal(t, 11, tree.NextTaskID())

	tree.FrontierTasks = nil
	assert.Equal(t, 1, tree.NextTaskID())
}

func TestSetLevelRaisesAvailableDepth(t *testing.T) {
	tree := newTree()
	require.Equal(t, 0, tree.AvailableDepth)

	tree.SetLevel(1, json.RawMessage(`{}`), SourceGenerated)
	assert.Equal(t, 1, tree.AvailableDepth)
	assert.Empty(t, tree.Warnings)

	tree.SetLevel(3, json.RawMessage(`[]`), SourceFallback)
	assert.Equal(t, 3, tree.AvailableDepth)
	require.Len(t, tree.Warnings, 1)
	assert.Contains(t, tree.Warnings[0], "fallback")

	// Re-setting a lower level never lowers the depth.
	tree.SetLevel(1, json.RawMessage(`{}`), SourceGenerated)
	assert.Equal(t, 3, tree.AvailableDepth)
}

func TestIncompleteTasks(t *testing.T) {
	tree := newTree()
	tree.MarkCompleted(1, CompletionRecord{})

	remaining := tree.IncompleteTasks()
	require.Len(t, remaining, 1)
	assert.Equal(t, 2, remaining[0].ID)
}

func TestAbsorbAccumulatesFrequenciesAndAverages(t *testing.T) {
	var ctx AccumulatedContext
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ctx.Absorb(CompletionRecord{
		DifficultyRating: 2,
		DurationMinutes:  30,
		LearningOutcomes: []string{"scales"},
		StrugglingAreas:  []string{"Intonation"},
		NextInterests:    []string{"vibrato"},
		CompletedAt:      now,
	})
	ctx.Absorb(CompletionRecord{
		DifficultyRating: 4,
		DurationMinutes:  60,
		StrugglingAreas:  []string{"intonation "},
		CompletedAt:      now.Add(time.Hour),
	})

	assert.Equal(t, 2, ctx.Samples)
	assert.InDelta(t, 3.0, ctx.PreferredDifficulty, 1e-9)
	assert.InDelta(t, 45.0, ctx.PreferredDuration, 1e-9)
	assert.Equal(t, 1, ctx.LearningOutcomes["scales"])

	// Topics dedupe case- and space-insensitively.
	require.Len(t, ctx.Struggles, 1)
	assert.Equal(t, 2, ctx.Struggles[0].Frequency)
	assert.False(t, ctx.Struggles[0].Resolved)

	require.Len(t, ctx.Interests, 1)
	assert.Equal(t, "vibrato", ctx.Interests[0].Topic)
}

func TestTreeJSONRoundTripKeepsLevels(t *testing.T) {
	tree := newTree()
	tree.SetLevel(1, json.RawMessage(`{"domain":"music"}`), SourceGenerated)

	raw, err := json.Marshal(tree)
	require.NoError(t, err)

	var decoded Tree
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, tree.ID, decoded.ID)
	assert.JSONEq(t, `{"domain":"music"}`, string(decoded.Levels[1]))
	assert.Equal(t, SourceGenerated, decoded.LevelSources[1])
}
