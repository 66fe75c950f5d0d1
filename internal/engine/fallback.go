package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BretMeraki/Forest7-15-sub001/internal/gateway"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/schema"
)

// GenerationStrategy is one way of producing level content. Strategies
// are tried in a fixed order; the strategy that produced a result is
// recorded on the content as its source tag.
type GenerationStrategy interface {
	Tag() hta.SourceTag
	Generate(ctx context.Context, levelKey string, payload any, instruction string) (json.RawMessage, error)
}

type gatewayStrategy struct {
	gen gateway.Generator
}

func (s gatewayStrategy) Tag() hta.SourceTag { return hta.SourceGenerated }

func (s gatewayStrategy) Generate(ctx context.Context, levelKey string, payload any, instruction string) (json.RawMessage, error) {
	return s.gen.Generate(ctx, levelKey, payload, instruction)
}

// skeletonStrategy produces deterministic, schema-conformant substitute
// content derived only from the goal and parent context carried in the
// payload. Downstream consumers see no structural difference from
// generated content; only the source tag differs.
type skeletonStrategy struct{}

func (skeletonStrategy) Tag() hta.SourceTag { return hta.SourceFallback }

func (skeletonStrategy) Generate(_ context.Context, levelKey string, payload any, _ string) (json.RawMessage, error) {
	var doc any
	switch levelKey {
	case schema.KeyGoalContext:
		p, ok := payload.(goalContextPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonGoalContext(p.Goal)
	case schema.KeyStrategicBranches:
		p, ok := payload.(branchesPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonBranches(p.Goal)
	case schema.KeyTaskDecomposition:
		p, ok := payload.(taskDecompositionPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonTasks(p.Goal, p.Branch.Name)
	case schema.KeyMicroParticles:
		p, ok := payload.(microParticlesPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonMicroParticles(p.Task.ID, p.Task.Title)
	case schema.KeyNanoActions:
		p, ok := payload.(nanoActionsPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonNanoActions(p.TaskID, p.Micro.Title)
	case schema.KeyContextAdaptivePrimitives:
		p, ok := payload.(primitivesPayload)
		if !ok {
			return nil, fmt.Errorf("skeleton: unexpected payload for %s", levelKey)
		}
		doc = skeletonPrimitives(p.TaskID, p.BaseAction)
	default:
		return nil, fmt.Errorf("skeleton: no fallback content for %s", levelKey)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("skeleton: marshal %s: %w", levelKey, err)
	}
	return raw, nil
}

func skeletonGoalContext(goal string) map[string]any {
	return map[string]any{
		"context_summary":    "Structured working plan for: " + goal,
		"domain":             "general",
		"key_challenges":     []string{"maintaining consistent practice", "finding time for focused work"},
		"success_indicators": []string{"steady task completion", "growing confidence with the material"},
		"constraints":        []string{},
	}
}

func skeletonBranches(goal string) map[string]any {
	return map[string]any{
		"branches": []map[string]any{
			{
				"name":              "Foundations",
				"description":       "Build the core knowledge and habits needed for: " + goal,
				"priority":          1,
				"domain_focus":      "fundamentals",
				"expected_outcomes": []string{"working grasp of the basics"},
			},
			{
				"name":              "Practical Application",
				"description":       "Apply what has been learned toward: " + goal,
				"priority":          2,
				"domain_focus":      "practice",
				"expected_outcomes": []string{"produced real work products"},
			},
			{
				"name":              "Consolidation",
				"description":       "Review, refine, and deepen progress on: " + goal,
				"priority":          3,
				"domain_focus":      "review",
				"expected_outcomes": []string{"retained and integrated skills"},
			},
		},
	}
}

func skeletonTasks(goal, branchName string) map[string]any {
	return map[string]any{
		"branch_name": branchName,
		"tasks": []map[string]any{
			{
				"title":            "Get oriented: " + branchName,
				"description":      "Survey what " + branchName + " involves for the goal: " + goal,
				"difficulty":       2,
				"duration_minutes": 25,
				"action":           "List the main topics and resources for this area",
				"validation":       "A written list of topics and at least one resource per topic",
			},
			{
				"title":            "First working session: " + branchName,
				"description":      "Do one focused block of real work within " + branchName,
				"difficulty":       3,
				"duration_minutes": 30,
				"action":           "Work through the first topic hands-on",
				"validation":       "A concrete artifact or notes from the session",
			},
			{
				"title":            "Review and plan next steps: " + branchName,
				"description":      "Consolidate what was done in " + branchName + " and pick the next focus",
				"difficulty":       2,
				"duration_minutes": 20,
				"action":           "Summarize progress and choose the next topic",
				"validation":       "A short written summary with a named next step",
			},
		},
	}
}

func skeletonMicroParticles(taskID int, title string) map[string]any {
	return map[string]any{
		"task_id":    taskID,
		"task_title": title,
		"micro_particles": []map[string]any{
			{
				"title":            "Prepare",
				"description":      "Set up everything needed for: " + title,
				"action":           "Gather materials and clear a workspace",
				"validation":       "Everything needed is at hand",
				"duration_minutes": 5,
				"difficulty":       1,
			},
			{
				"title":            "Execute",
				"description":      "Do the core work of: " + title,
				"action":           "Work through the task without interruption",
				"validation":       "The task's own validation criterion is met",
				"duration_minutes": 20,
				"difficulty":       3,
			},
			{
				"title":            "Verify",
				"description":      "Check the outcome of: " + title,
				"action":           "Compare the result against the task validation",
				"validation":       "Result confirmed or gaps noted",
				"duration_minutes": 5,
				"difficulty":       1,
			},
		},
	}
}

func skeletonNanoActions(taskID int, microTitle string) map[string]any {
	return map[string]any{
		"task_id":     taskID,
		"micro_title": microTitle,
		"nano_actions": []map[string]any{
			{
				"action_title":      "Start: " + microTitle,
				"specific_steps":    []string{"Open the relevant materials", "Set a timer"},
				"duration_minutes":  2,
				"validation_method": "Timer running and materials open",
			},
			{
				"action_title":      "Work: " + microTitle,
				"specific_steps":    []string{"Complete the step as described", "Note anything unclear"},
				"duration_minutes":  10,
				"validation_method": "Step output exists",
			},
			{
				"action_title":      "Close out: " + microTitle,
				"specific_steps":    []string{"Record what was done", "Tidy the workspace"},
				"duration_minutes":  3,
				"validation_method": "Notes written",
			},
		},
	}
}

func skeletonPrimitives(taskID int, baseAction string) map[string]any {
	return map[string]any{
		"task_id":     taskID,
		"base_action": baseAction,
		"context_adaptations": []map[string]any{
			{
				"context":         "low energy or limited time",
				"adapted_action":  "Do a five-minute version of: " + baseAction,
				"energy_required": "low",
			},
			{
				"context":         "focused block available",
				"adapted_action":  "Do the full version of: " + baseAction + " and one extra repetition",
				"energy_required": "high",
			},
		},
	}
}
