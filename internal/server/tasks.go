package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BretMeraki/Forest7-15-sub001/internal/config"
	"github.com/BretMeraki/Forest7-15-sub001/internal/forest"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/pipeline"
)

// CompleteTool handles the complete_task MCP tool.
type CompleteTool struct {
	svc *forest.Service
}

// NewCompleteTool creates a CompleteTool.
func NewCompleteTool(svc *forest.Service) *CompleteTool {
	return &CompleteTool{svc: svc}
}

// Definition returns the MCP tool definition for complete_task.
func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("complete_task",
		mcp.WithDescription(
			"Record a task completion with reflections. Completions accumulate into "+
				"context that can trigger tree evolution: deeper decomposition after "+
				"breakthroughs, new branches from emerging interests, refinement of "+
				"struggling areas.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the tree belongs to"),
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("ID of the completed task"),
		),
		mcp.WithString("path_name",
			mcp.Description("Named path within the project (default: general)"),
		),
		mcp.WithNumber("quality",
			mcp.Description("Self-assessed quality of the work, 1-5"),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Description("Actual time spent in minutes"),
		),
		mcp.WithNumber("difficulty_rating",
			mcp.Description("How hard it felt, 1-5"),
		),
		mcp.WithString("reflections",
			mcp.Description("Free-form notes about the work"),
		),
		mcp.WithString("learning_outcomes",
			mcp.Description("Comma-separated things learned"),
		),
		mcp.WithString("struggling_areas",
			mcp.Description("Comma-separated areas that were hard"),
		),
		mcp.WithString("breakthroughs",
			mcp.Description("Comma-separated breakthrough moments"),
		),
		mcp.WithString("next_interests",
			mcp.Description("Comma-separated topics to explore next"),
		),
	)
}

// Handle processes the complete_task tool call.
func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	taskID := intArg(req, "task_id", 0)
	if taskID < 1 {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	rec := hta.CompletionRecord{
		Quality:          intArg(req, "quality", 3),
		DurationMinutes:  intArg(req, "duration_minutes", 0),
		DifficultyRating: intArg(req, "difficulty_rating", 3),
		Reflections:      req.GetString("reflections", ""),
		LearningOutcomes: listArg(req, "learning_outcomes"),
		StrugglingAreas:  listArg(req, "struggling_areas"),
		Breakthroughs:    listArg(req, "breakthroughs"),
		NextInterests:    listArg(req, "next_interests"),
	}

	result, err := t.svc.RecordCompletion(ctx, projectID, req.GetString("path_name", ""), taskID, rec)
	if err != nil {
		if err == hta.ErrNoTree {
			return mcp.NewToolResultError("no tree exists for this project; build one first"), nil
		}
		return mcp.NewToolResultError("complete task: " + err.Error()), nil
	}
	return jsonResult(result), nil
}

// NextTool handles the get_next_tasks MCP tool.
type NextTool struct {
	svc *forest.Service
	cfg config.Config
}

// NewNextTool creates a NextTool.
func NewNextTool(svc *forest.Service, cfg config.Config) *NextTool {
	return &NextTool{svc: svc, cfg: cfg}
}

// Definition returns the MCP tool definition for get_next_tasks.
func (t *NextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_next_tasks",
		mcp.WithDescription(
			"Select the next work pipeline from the tree's incomplete tasks: one primary "+
				"recommendation, up to three secondary options, and up to two tertiary "+
				"alternatives, matched to current energy and available time.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the tree belongs to"),
		),
		mcp.WithString("path_name",
			mcp.Description("Named path within the project (default: general)"),
		),
		mcp.WithNumber("energy",
			mcp.Description("Current energy level, 1-5"),
		),
		mcp.WithNumber("time_available",
			mcp.Description("Minutes available for the next work block"),
		),
		mcp.WithString("focus",
			mcp.Description("Optional topic to bias selection toward"),
		),
	)
}

// Handle processes the get_next_tasks tool call.
func (t *NextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	rc := pipeline.ResourceContext{
		EnergyLevel:          intArg(req, "energy", t.cfg.Selection.DefaultEnergy),
		TimeAvailableMinutes: intArg(req, "time_available", t.cfg.Selection.DefaultTimeMinutes),
	}
	p, err := t.svc.GetPipeline(ctx, projectID, req.GetString("path_name", ""), req.GetString("focus", ""), rc)
	if err != nil {
		if err == hta.ErrNoTree {
			return mcp.NewToolResultError("no tree exists for this project; build one first"), nil
		}
		return mcp.NewToolResultError("get next tasks: " + err.Error()), nil
	}
	if p.Primary == nil {
		return mcp.NewToolResultText("All tasks are completed. Expand the tree or build a new one."), nil
	}
	return jsonResult(p), nil
}
