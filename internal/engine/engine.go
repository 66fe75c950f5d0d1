// Package engine drives progressive hierarchical decomposition: it
// orchestrates level-by-level generation of a goal tree (goal context,
// strategic branches, tasks, micro-steps, atomic actions, and context
// variants), fans independent sibling calls out concurrently with a join
// barrier between levels, and falls back to deterministic skeleton
// content when generation fails.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BretMeraki/Forest7-15-sub001/internal/gateway"
	"github.com/BretMeraki/Forest7-15-sub001/internal/goal"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/schema"
)

const defaultConcurrency = 4

// Options controls one build invocation.
type Options struct {
	// TargetDepth overrides the characteristics-derived depth when > 0.
	// An explicit value may go below the default floor of 4.
	TargetDepth int
	// ForceRegenerate rebuilds even when a tree with frontier tasks
	// already exists.
	ForceRegenerate bool
	// Strict aborts the whole operation on any generation failure
	// instead of substituting fallback skeleton content.
	Strict bool
}

// Engine produces and expands decomposition trees.
type Engine struct {
	strategies  []GenerationStrategy
	concurrency int
	logger      zerolog.Logger
}

// New creates an engine whose generation strategy chain is the gateway
// followed by the deterministic skeleton.
func New(gen gateway.Generator, logger zerolog.Logger) *Engine {
	return &Engine{
		strategies:  []GenerationStrategy{gatewayStrategy{gen: gen}, skeletonStrategy{}},
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// Per-level payloads passed to generation strategies. Each concurrent
// call receives a read-only slice of its parent's output.

type goalContextPayload struct {
	Goal    string         `json:"goal"`
	Context map[string]any `json:"context,omitempty"`
}

type branchesPayload struct {
	Goal        string          `json:"goal"`
	GoalContext json.RawMessage `json:"goal_context"`
}

type taskDecompositionPayload struct {
	Goal        string          `json:"goal"`
	Branch      hta.Branch      `json:"branch"`
	GoalContext json.RawMessage `json:"goal_context,omitempty"`
}

type taskSummary struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  int    `json:"difficulty"`
}

type microParticlesPayload struct {
	Goal string      `json:"goal"`
	Task taskSummary `json:"task"`
}

type nanoActionsPayload struct {
	Goal   string                `json:"goal"`
	TaskID int                   `json:"task_id"`
	Micro  gateway.MicroParticle `json:"micro_particle"`
}

type primitivesPayload struct {
	Goal       string `json:"goal"`
	TaskID     int    `json:"task_id"`
	BaseAction string `json:"base_action"`
}

// Build produces a new decomposition tree for the goal, generating levels
// 1 through the resolved target depth.
func (e *Engine) Build(ctx context.Context, projectID, pathName, goalText string, goalCtx map[string]any, opts Options) (*hta.Tree, error) {
	goalText = strings.TrimSpace(goalText)
	if goalText == "" {
		return nil, hta.ErrMissingGoal
	}

	chars := goal.Analyze(goalText, goalCtx)
	target := resolveTargetDepth(opts, chars)

	tree := hta.NewTree(uuid.NewString(), projectID, pathName, goalText, goalCtx, chars)
	e.logger.Info().
		Str("goal", goalText).
		Int("target_depth", target).
		Str("complexity", string(chars.ComplexityClass)).
		Msg("building decomposition tree")

	if err := e.generateLevels(ctx, tree, 1, target, opts.Strict); err != nil {
		return nil, err
	}
	return tree, nil
}

// resolveTargetDepth applies the depth policy: caller override wins and
// may set a lower floor; the characteristics default is clamped to [4,6].
func resolveTargetDepth(opts Options, chars hta.GoalCharacteristics) int {
	if opts.TargetDepth > 0 {
		return clamp(opts.TargetDepth, 1, hta.MaxDepth)
	}
	return clamp(chars.RecommendedDepth, 4, hta.MaxDepth)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// generateLevels generates levels from..to in strict dependency order.
// Level n+1 never begins until level n has fully resolved for all
// siblings.
func (e *Engine) generateLevels(ctx context.Context, tree *hta.Tree, from, to int, strict bool) error {
	for depth := from; depth <= to; depth++ {
		var err error
		switch depth {
		case 1:
			err = e.generateGoalContext(ctx, tree, strict)
		case 2:
			err = e.generateBranches(ctx, tree, strict)
		case 3:
			err = e.generateTasks(ctx, tree, strict)
		case 4:
			err = e.generateMicroParticles(ctx, tree, strict)
		case 5:
			err = e.generateNanoActions(ctx, tree, strict)
		case 6:
			err = e.generatePrimitives(ctx, tree, strict)
		default:
			err = fmt.Errorf("no generator for depth %d", depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// generate runs the strategy chain for one call. In strict mode only the
// primary strategy is tried and its failure propagates.
func (e *Engine) generate(ctx context.Context, levelKey string, payload any, instruction string, strict bool) (json.RawMessage, hta.SourceTag, error) {
	var lastErr error
	for i, s := range e.strategies {
		if strict && i > 0 {
			break
		}
		raw, err := s.Generate(ctx, levelKey, payload, instruction)
		if err != nil {
			lastErr = err
			e.logger.Warn().Err(err).
				Str("level", levelKey).
				Str("strategy", string(s.Tag())).
				Msg("generation strategy failed")
			continue
		}
		if err := schema.Validate(levelKey, raw); err != nil {
			lastErr = &gateway.GenerationError{LevelKey: levelKey, Reason: "schema mismatch", Err: err}
			continue
		}
		return raw, s.Tag(), nil
	}
	if _, ok := gateway.AsGenerationError(lastErr); ok {
		return nil, "", lastErr
	}
	return nil, "", &gateway.GenerationError{LevelKey: levelKey, Reason: "all strategies failed", Err: lastErr}
}

func (e *Engine) generateGoalContext(ctx context.Context, tree *hta.Tree, strict bool) error {
	payload := goalContextPayload{Goal: tree.Goal, Context: tree.Context}
	raw, tag, err := e.generate(ctx, schema.KeyGoalContext, payload,
		"Analyze this goal and produce a concise working context for decomposing it into a plan.", strict)
	if err != nil {
		return err
	}
	tree.SetLevel(1, raw, tag)
	return nil
}

func (e *Engine) generateBranches(ctx context.Context, tree *hta.Tree, strict bool) error {
	payload := branchesPayload{Goal: tree.Goal, GoalContext: tree.Levels[1]}
	raw, tag, err := e.generate(ctx, schema.KeyStrategicBranches, payload,
		"Decompose this goal into 3-7 strategic branches ordered by priority.", strict)
	if err != nil {
		return err
	}
	branches, err := gateway.NormalizeBranches(raw, tag)
	if err != nil {
		return &gateway.GenerationError{LevelKey: schema.KeyStrategicBranches, Reason: "normalize branches", Err: err}
	}
	tree.Branches = branches
	tree.SetLevel(2, raw, tag)
	return nil
}

// levelResult carries one sibling call's outcome across the join barrier.
type levelResult struct {
	raw json.RawMessage
	tag hta.SourceTag
	err error
}

func (e *Engine) generateTasks(ctx context.Context, tree *hta.Tree, strict bool) error {
	if len(tree.Branches) == 0 {
		return &gateway.GenerationError{LevelKey: schema.KeyTaskDecomposition, Reason: "no strategic branches to decompose"}
	}

	// Full coverage: one independent call per branch, run concurrently.
	results := make([]levelResult, len(tree.Branches))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range tree.Branches {
		g.Go(func() error {
			payload := taskDecompositionPayload{Goal: tree.Goal, Branch: tree.Branches[i], GoalContext: tree.Levels[1]}
			raw, tag, err := e.generate(ctx, schema.KeyTaskDecomposition, payload,
				"Decompose this strategic branch into 3-10 concrete, actionable tasks.", strict)
			results[i] = levelResult{raw: raw, tag: tag, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := firstError(results); err != nil {
		return err
	}

	levelTag := hta.SourceGenerated
	raws := make([]json.RawMessage, 0, len(results))
	for i, res := range results {
		branch := &tree.Branches[i]
		set, err := gateway.NormalizeTaskSet(res.raw, branch.Name)
		if err != nil {
			return &gateway.GenerationError{LevelKey: schema.KeyTaskDecomposition, Reason: "normalize tasks", Err: err}
		}
		if res.tag == hta.SourceFallback {
			levelTag = hta.SourceFallback
		}
		titleToID := make(map[string]int, len(set.Tasks))
		for ordinal, tp := range set.Tasks {
			id := tree.NextTaskID()
			task := hta.Task{
				ID:                  id,
				Title:               tp.Title,
				Description:         tp.Description,
				Difficulty:          clamp(tp.Difficulty, 1, 5),
				DurationMinutes:     tp.DurationMinutes,
				Branch:              branch.Name,
				Priority:            branch.Priority*100 + (ordinal+1)*10,
				Action:              tp.Action,
				Validation:          tp.Validation,
				DecompositionDepth:  3,
				CanDecomposeFurther: true,
				SourceTag:           res.tag,
			}
			titleToID[strings.ToLower(strings.TrimSpace(tp.Title))] = id
			tree.FrontierTasks = append(tree.FrontierTasks, task)
			branch.TaskIDs = append(branch.TaskIDs, id)
		}
		// Prerequisites reference sibling tasks by title within the branch.
		for ordinal, tp := range set.Tasks {
			if len(tp.Prerequisites) == 0 {
				continue
			}
			task, _ := tree.Task(branch.TaskIDs[ordinal])
			for _, pre := range tp.Prerequisites {
				if id, ok := titleToID[strings.ToLower(strings.TrimSpace(pre))]; ok && id != task.ID {
					task.Prerequisites = append(task.Prerequisites, id)
				}
			}
		}
		raws = append(raws, res.raw)
	}

	aggregate, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("aggregate level 3: %w", err)
	}
	tree.SetLevel(3, aggregate, levelTag)
	return nil
}

func (e *Engine) generateMicroParticles(ctx context.Context, tree *hta.Tree, strict bool) error {
	if len(tree.FrontierTasks) == 0 {
		return &gateway.GenerationError{LevelKey: schema.KeyMicroParticles, Reason: "no tasks to decompose"}
	}

	results := make([]levelResult, len(tree.FrontierTasks))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range tree.FrontierTasks {
		g.Go(func() error {
			task := tree.FrontierTasks[i]
			payload := microParticlesPayload{
				Goal: tree.Goal,
				Task: taskSummary{ID: task.ID, Title: task.Title, Description: task.Description, Difficulty: task.Difficulty},
			}
			raw, tag, err := e.generate(ctx, schema.KeyMicroParticles, payload,
				"Break this task into 3-12 micro-steps, each small enough to finish in one sitting.", strict)
			results[i] = levelResult{raw: raw, tag: tag, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := firstError(results); err != nil {
		return err
	}

	levelTag := hta.SourceGenerated
	raws := make([]json.RawMessage, 0, len(results))
	for i, res := range results {
		if res.tag == hta.SourceFallback {
			levelTag = hta.SourceFallback
		}
		tree.FrontierTasks[i].DecompositionDepth = 4
		raws = append(raws, res.raw)
	}
	aggregate, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("aggregate level 4: %w", err)
	}
	tree.SetLevel(4, aggregate, levelTag)
	return nil
}

func (e *Engine) generateNanoActions(ctx context.Context, tree *hta.Tree, strict bool) error {
	sets, err := gateway.ParseMicroParticleSets(tree.Levels[4])
	if err != nil {
		return &gateway.GenerationError{LevelKey: schema.KeyNanoActions, Reason: "level 4 content unreadable", Err: err}
	}

	type unit struct {
		taskID int
		micro  gateway.MicroParticle
	}
	var units []unit
	for _, set := range sets {
		for _, particle := range set.Particles {
			units = append(units, unit{taskID: set.TaskID, micro: particle})
		}
	}
	if len(units) == 0 {
		return &gateway.GenerationError{LevelKey: schema.KeyNanoActions, Reason: "no micro-steps to decompose"}
	}

	results := make([]levelResult, len(units))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range units {
		g.Go(func() error {
			payload := nanoActionsPayload{Goal: tree.Goal, TaskID: units[i].taskID, Micro: units[i].micro}
			raw, tag, err := e.generate(ctx, schema.KeyNanoActions, payload,
				"Break this micro-step into 3-8 atomic actions with specific, literal steps.", strict)
			results[i] = levelResult{raw: raw, tag: tag, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := firstError(results); err != nil {
		return err
	}

	levelTag := hta.SourceGenerated
	raws := make([]json.RawMessage, 0, len(results))
	for _, res := range results {
		if res.tag == hta.SourceFallback {
			levelTag = hta.SourceFallback
		}
		raws = append(raws, res.raw)
	}
	aggregate, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("aggregate level 5: %w", err)
	}
	markDepth(tree, 5)
	tree.SetLevel(5, aggregate, levelTag)
	return nil
}

func (e *Engine) generatePrimitives(ctx context.Context, tree *hta.Tree, strict bool) error {
	sets, err := gateway.ParseNanoActionSets(tree.Levels[5])
	if err != nil {
		return &gateway.GenerationError{LevelKey: schema.KeyContextAdaptivePrimitives, Reason: "level 5 content unreadable", Err: err}
	}

	type unit struct {
		taskID     int
		baseAction string
	}
	var units []unit
	for _, set := range sets {
		for _, action := range set.Actions {
			units = append(units, unit{taskID: set.TaskID, baseAction: action.ActionTitle})
		}
	}
	if len(units) == 0 {
		return &gateway.GenerationError{LevelKey: schema.KeyContextAdaptivePrimitives, Reason: "no atomic actions to adapt"}
	}

	results := make([]levelResult, len(units))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i := range units {
		g.Go(func() error {
			payload := primitivesPayload{Goal: tree.Goal, TaskID: units[i].taskID, BaseAction: units[i].baseAction}
			raw, tag, err := e.generate(ctx, schema.KeyContextAdaptivePrimitives, payload,
				"Produce 2-6 context-adaptive variants of this atomic action for different energy and time situations.", strict)
			results[i] = levelResult{raw: raw, tag: tag, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := firstError(results); err != nil {
		return err
	}

	levelTag := hta.SourceGenerated
	raws := make([]json.RawMessage, 0, len(results))
	for _, res := range results {
		if res.tag == hta.SourceFallback {
			levelTag = hta.SourceFallback
		}
		raws = append(raws, res.raw)
	}
	aggregate, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("aggregate level 6: %w", err)
	}
	markDepth(tree, 6)
	for i := range tree.FrontierTasks {
		tree.FrontierTasks[i].CanDecomposeFurther = false
	}
	tree.SetLevel(6, aggregate, levelTag)
	return nil
}

// firstError returns the first sibling failure after the join barrier.
// All siblings have already run to completion by the time this is called.
func firstError(results []levelResult) error {
	for _, res := range results {
		if res.err != nil {
			return res.err
		}
	}
	return nil
}

func markDepth(tree *hta.Tree, depth int) {
	for i := range tree.FrontierTasks {
		if tree.FrontierTasks[i].DecompositionDepth < depth {
			tree.FrontierTasks[i].DecompositionDepth = depth
		}
	}
}
