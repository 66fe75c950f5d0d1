package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BretMeraki/Forest7-15-sub001/internal/gateway"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/schema"
)

// scriptedGenerator produces schema-valid documents per level key and
// can be told to fail for specific keys.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   map[string]int
	failFor map[string]bool
	invalid map[string]bool
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		calls:   map[string]int{},
		failFor: map[string]bool{},
		invalid: map[string]bool{},
	}
}

func (g *scriptedGenerator) callCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[key]
}

func (g *scriptedGenerator) Generate(_ context.Context, levelKey string, _ any, _ string) (json.RawMessage, error) {
	g.mu.Lock()
	g.calls[levelKey]++
	fail := g.failFor[levelKey]
	invalid := g.invalid[levelKey]
	g.mu.Unlock()

	if fail {
		return nil, errors.New("scripted failure")
	}
	if invalid {
		return json.RawMessage(`{"unexpected": true}`), nil
	}

	switch levelKey {
	case schema.KeyGoalContext:
		return json.RawMessage(`{"context_summary": "Structured study plan", "domain": "music"}`), nil
	case schema.KeyStrategicBranches:
		return json.RawMessage(`{"branches": [
			{"name": "Technique", "description": "Physical fundamentals"},
			{"name": "Theory", "description": "Understanding the material"},
			{"name": "Repertoire", "description": "Pieces to perform"}
		]}`), nil
	case schema.KeyTaskDecomposition:
		task := `{"title": "Task %d", "description": "Work item", "difficulty": 2, "duration_minutes": 20}`
		doc := fmt.Sprintf(`{"tasks": [%s, %s, %s]}`,
			fmt.Sprintf(task, 1), fmt.Sprintf(task, 2), fmt.Sprintf(task, 3))
		return json.RawMessage(doc), nil
	case schema.KeyMicroParticles:
		return json.RawMessage(`{"task_id": 1, "micro_particles": [
			{"title": "Prepare", "action": "set up", "validation": "ready"},
			{"title": "Execute", "action": "do it", "validation": "done"},
			{"title": "Verify", "action": "check", "validation": "verified"}
		]}`), nil
	case schema.KeyNanoActions:
		return json.RawMessage(`{"task_id": 1, "micro_title": "Prepare", "nano_actions": [
			{"action_title": "Open materials", "specific_steps": ["open the book"]},
			{"action_title": "Set a timer", "specific_steps": ["pick 20 minutes"]},
			{"action_title": "Clear the desk", "specific_steps": ["remove distractions"]}
		]}`), nil
	case schema.KeyContextAdaptivePrimitives:
		return json.RawMessage(`{"task_id": 1, "base_action": "Open materials", "context_adaptations": [
			{"context": "low_energy", "adapted_action": "skim only"},
			{"context": "high_energy", "adapted_action": "full session"}
		]}`), nil
	default:
		return nil, fmt.Errorf("no script for %s", levelKey)
	}
}

func newTestEngine(gen gateway.Generator) *Engine {
	return New(gen, zerolog.Nop())
}

func TestBuildRejectsEmptyGoal(t *testing.T) {
	eng := newTestEngine(newScriptedGenerator())
	_, err := eng.Build(context.Background(), "p", "general", "   ", nil, Options{})
	assert.ErrorIs(t, err, hta.ErrMissingGoal)
}

func TestBuildThreeLevels(t *testing.T) {
	gen := newScriptedGenerator()
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, tree.AvailableDepth)
	assert.Len(t, tree.Branches, 3)
	// One task decomposition call per branch, three tasks each.
	assert.Equal(t, 3, gen.callCount(schema.KeyTaskDecomposition))
	assert.Len(t, tree.FrontierTasks, 9)

	for depth := 1; depth <= 3; depth++ {
		assert.Equal(t, hta.SourceGenerated, tree.LevelSources[depth])
	}
	// Task identity and ordering invariants.
	branchNames := map[string]bool{}
	for _, branch := range tree.Branches {
		branchNames[branch.Name] = true
	}
	seen := map[int]bool{}
	for _, task := range tree.FrontierTasks {
		assert.False(t, seen[task.ID], "duplicate task id %d", task.ID)
		seen[task.ID] = true
		assert.Equal(t, 3, task.DecompositionDepth)
		assert.True(t, task.CanDecomposeFurther)
		// The generator omits the branch wrapper; assignment comes
		// from the owning branch.
		assert.True(t, branchNames[task.Branch], "task %d has unknown branch %q", task.ID, task.Branch)
	}
	// Priority encodes branch rank then ordinal.
	first, _ := tree.Task(tree.Branches[0].TaskIDs[0])
	assert.Equal(t, 110, first.Priority)
}

// variantGenerator overrides selected level keys of a scripted
// generator with alternate response shapes.
type variantGenerator struct {
	*scriptedGenerator
	overrides map[string]json.RawMessage
}

func (g *variantGenerator) Generate(ctx context.Context, levelKey string, payload any, instruction string) (json.RawMessage, error) {
	if raw, ok := g.overrides[levelKey]; ok {
		g.mu.Lock()
		g.calls[levelKey]++
		g.mu.Unlock()
		return raw, nil
	}
	return g.scriptedGenerator.Generate(ctx, levelKey, payload, instruction)
}

func TestBuildLinksPrerequisitesByTitle(t *testing.T) {
	gen := &variantGenerator{
		scriptedGenerator: newScriptedGenerator(),
		overrides: map[string]json.RawMessage{
			schema.KeyTaskDecomposition: json.RawMessage(`{"branch_name": "Scripted", "tasks": [
				{"title": "Learn the fingering", "description": "Base skill", "difficulty": 2, "duration_minutes": 20},
				{"title": "Play slow scales", "description": "Apply it", "difficulty": 2, "duration_minutes": 20,
					"prerequisites": ["Learn the fingering"]},
				{"title": "Play at tempo", "description": "Speed up", "difficulty": 3, "duration_minutes": 25,
					"prerequisites": ["play slow scales", "Unknown step", "Play at tempo"]}
			]}`),
		},
	}
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, hta.SourceGenerated, tree.LevelSources[3])

	branch := tree.Branches[0]
	require.Len(t, branch.TaskIDs, 3)
	first, _ := tree.Task(branch.TaskIDs[0])
	second, _ := tree.Task(branch.TaskIDs[1])
	third, _ := tree.Task(branch.TaskIDs[2])

	assert.Empty(t, first.Prerequisites)
	assert.Equal(t, []int{first.ID}, second.Prerequisites)
	// Title lookup is case-insensitive; unknown titles and self
	// references are dropped.
	assert.Equal(t, []int{second.ID}, third.Prerequisites)
}

func TestBuildAcceptsVariantShapes(t *testing.T) {
	gen := &variantGenerator{
		scriptedGenerator: newScriptedGenerator(),
		overrides: map[string]json.RawMessage{
			schema.KeyStrategicBranches: json.RawMessage(`{"strategic_branches": [
				{"name": "Technique", "description": "Physical fundamentals"},
				{"name": "Theory", "description": "Understanding the material"},
				{"name": "Repertoire", "description": "Pieces to perform"}
			]}`),
			schema.KeyTaskDecomposition: json.RawMessage(`[
				{"title": "Task 1", "description": "Work item", "difficulty": 2, "duration_minutes": 20},
				{"title": "Task 2", "description": "Work item", "difficulty": 2, "duration_minutes": 20},
				{"title": "Task 3", "description": "Work item", "difficulty": 2, "duration_minutes": 20}
			]`),
		},
	}
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)

	assert.Equal(t, hta.SourceGenerated, tree.LevelSources[2])
	assert.Equal(t, hta.SourceGenerated, tree.LevelSources[3])
	require.Len(t, tree.Branches, 3)
	assert.Equal(t, "Technique", tree.Branches[0].Name)
	assert.Len(t, tree.FrontierTasks, 9)
	for _, task := range tree.FrontierTasks {
		assert.NotEmpty(t, task.Branch)
	}
}

func TestBuildFullDepth(t *testing.T) {
	gen := newScriptedGenerator()
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 6})
	require.NoError(t, err)

	assert.Equal(t, 6, tree.AvailableDepth)
	for depth := 1; depth <= 6; depth++ {
		_, ok := tree.Levels[depth]
		assert.True(t, ok, "missing level %d", depth)
	}
	// One micro-particle call per task.
	assert.Equal(t, len(tree.FrontierTasks), gen.callCount(schema.KeyMicroParticles))
	// At full depth nothing can decompose further.
	for _, task := range tree.FrontierTasks {
		assert.False(t, task.CanDecomposeFurther)
		assert.Equal(t, 6, task.DecompositionDepth)
	}
}

func TestBuildDepthDefaultsFromCharacteristics(t *testing.T) {
	eng := newTestEngine(newScriptedGenerator())

	tree, err := eng.Build(context.Background(), "p", "general", "tidy desk", nil, Options{})
	require.NoError(t, err)
	// Simple goals without explicit depth still get the floor of 4.
	assert.GreaterOrEqual(t, tree.AvailableDepth, 4)
	assert.LessOrEqual(t, tree.AvailableDepth, hta.MaxDepth)
}

func TestBuildFallsBackPerLevel(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failFor[schema.KeyStrategicBranches] = true
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)

	assert.Equal(t, hta.SourceGenerated, tree.LevelSources[1])
	assert.Equal(t, hta.SourceFallback, tree.LevelSources[2])
	// Later levels recover: tasks are generated against fallback branches.
	assert.Equal(t, hta.SourceGenerated, tree.LevelSources[3])
	assert.NotEmpty(t, tree.Branches)
	assert.NotEmpty(t, tree.FrontierTasks)
	require.NotEmpty(t, tree.Warnings)
	assert.Contains(t, tree.Warnings[0], "fallback")
}

func TestBuildSchemaInvalidContentFallsBack(t *testing.T) {
	gen := newScriptedGenerator()
	gen.invalid[schema.KeyGoalContext] = true
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, hta.SourceFallback, tree.LevelSources[1])
	// The stored document still satisfies the level schema.
	assert.NoError(t, schema.Validate(schema.KeyGoalContext, tree.Levels[1]))
}

func TestBuildStrictModePropagatesFailure(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failFor[schema.KeyStrategicBranches] = true
	eng := newTestEngine(gen)

	_, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3, Strict: true})
	require.Error(t, err)
	genErr, ok := gateway.AsGenerationError(err)
	require.True(t, ok)
	assert.Equal(t, schema.KeyStrategicBranches, genErr.LevelKey)
}

func TestBuildSiblingFailureDoesNotAbortOthers(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failFor[schema.KeyTaskDecomposition] = true
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)
	// All branches fell back but every branch still has tasks.
	assert.Equal(t, hta.SourceFallback, tree.LevelSources[3])
	for _, branch := range tree.Branches {
		assert.NotEmpty(t, branch.TaskIDs, "branch %s has no tasks", branch.Name)
	}
}

func TestExpandNilTree(t *testing.T) {
	eng := newTestEngine(newScriptedGenerator())
	err := eng.Expand(context.Background(), nil, 4, false)
	assert.ErrorIs(t, err, hta.ErrNoTree)
}

func TestExpandIsIncremental(t *testing.T) {
	gen := newScriptedGenerator()
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 3})
	require.NoError(t, err)
	goalContextCalls := gen.callCount(schema.KeyGoalContext)

	require.NoError(t, eng.Expand(context.Background(), tree, 5, false))
	assert.Equal(t, 5, tree.AvailableDepth)
	// Existing levels are never regenerated.
	assert.Equal(t, goalContextCalls, gen.callCount(schema.KeyGoalContext))

	// Expanding to an already-available depth is a no-op.
	nanoCalls := gen.callCount(schema.KeyNanoActions)
	require.NoError(t, eng.Expand(context.Background(), tree, 4, false))
	assert.Equal(t, nanoCalls, gen.callCount(schema.KeyNanoActions))
}

func TestExpandClampsTargetDepth(t *testing.T) {
	gen := newScriptedGenerator()
	eng := newTestEngine(gen)

	tree, err := eng.Build(context.Background(), "p", "general", "Learn the cello", nil, Options{TargetDepth: 5})
	require.NoError(t, err)

	require.NoError(t, eng.Expand(context.Background(), tree, 99, false))
	assert.Equal(t, hta.MaxDepth, tree.AvailableDepth)
}
