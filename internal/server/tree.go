package server

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BretMeraki/Forest7-15-sub001/internal/config"
	"github.com/BretMeraki/Forest7-15-sub001/internal/engine"
	"github.com/BretMeraki/Forest7-15-sub001/internal/forest"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

// BuildTool handles the build_hta_tree MCP tool.
type BuildTool struct {
	svc *forest.Service
	cfg config.Config
}

// NewBuildTool creates a BuildTool.
func NewBuildTool(svc *forest.Service, cfg config.Config) *BuildTool {
	return &BuildTool{svc: svc, cfg: cfg}
}

// Definition returns the MCP tool definition for build_hta_tree.
func (t *BuildTool) Definition() mcp.Tool {
	return mcp.NewTool("build_hta_tree",
		mcp.WithDescription(
			"Decompose a goal into a hierarchical task tree: goal context, strategic branches, "+
				"and actionable tasks, expandable down to six levels. Returns the existing tree "+
				"unchanged when one was already built for the project.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the tree belongs to"),
		),
		mcp.WithString("goal",
			mcp.Required(),
			mcp.Description("The goal to decompose, in plain language"),
		),
		mcp.WithString("path_name",
			mcp.Description("Named path within the project (default: general)"),
		),
		mcp.WithString("context",
			mcp.Description("Optional context as free text or a JSON object"),
		),
		mcp.WithNumber("target_depth",
			mcp.Description("Levels to generate up front, 1-6 (default derived from goal complexity)"),
		),
		mcp.WithBoolean("force_regenerate",
			mcp.Description("Rebuild even if a tree with tasks already exists"),
		),
	)
}

// Handle processes the build_hta_tree tool call.
func (t *BuildTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	goal := req.GetString("goal", "")
	if goal == "" {
		return mcp.NewToolResultError("'goal' is required"), nil
	}

	tree, err := t.svc.BuildTree(ctx, forest.BuildRequest{
		ProjectID: projectID,
		PathName:  req.GetString("path_name", ""),
		Goal:      goal,
		Context:   parseContext(req.GetString("context", "")),
		Options: engine.Options{
			TargetDepth:     intArg(req, "target_depth", 0),
			ForceRegenerate: boolArg(req, "force_regenerate", false),
			Strict:          t.cfg.Generation.Strict,
		},
	})
	if err != nil {
		return mcp.NewToolResultError("build tree: " + err.Error()), nil
	}
	return jsonResult(tree), nil
}

// parseContext accepts either a JSON object or free text. Free text is
// carried under a "summary" key.
func parseContext(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj
	}
	return map[string]any{"summary": raw}
}

// ExpandTool handles the expand_hta_tree MCP tool.
type ExpandTool struct {
	svc *forest.Service
}

// NewExpandTool creates an ExpandTool.
func NewExpandTool(svc *forest.Service) *ExpandTool {
	return &ExpandTool{svc: svc}
}

// Definition returns the MCP tool definition for expand_hta_tree.
func (t *ExpandTool) Definition() mcp.Tool {
	return mcp.NewTool("expand_hta_tree",
		mcp.WithDescription(
			"Expand an existing tree to a deeper level: micro-steps, atomic actions, "+
				"and context-adaptive variants. Already-available levels are never regenerated.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the tree belongs to"),
		),
		mcp.WithNumber("target_depth",
			mcp.Required(),
			mcp.Description("Depth to expand to, 1-6"),
		),
		mcp.WithString("path_name",
			mcp.Description("Named path within the project (default: general)"),
		),
	)
}

// Handle processes the expand_hta_tree tool call.
func (t *ExpandTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	targetDepth := intArg(req, "target_depth", 0)
	if targetDepth < 1 {
		return mcp.NewToolResultError("'target_depth' is required"), nil
	}

	tree, err := t.svc.ExpandTree(ctx, projectID, req.GetString("path_name", ""), targetDepth, false)
	if err != nil {
		if err == hta.ErrNoTree {
			return mcp.NewToolResultError("no tree exists for this project; build one first"), nil
		}
		return mcp.NewToolResultError("expand tree: " + err.Error()), nil
	}
	return jsonResult(tree), nil
}

// StatusTool handles the tree_status MCP tool.
type StatusTool struct {
	svc *forest.Service
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(svc *forest.Service) *StatusTool {
	return &StatusTool{svc: svc}
}

// Definition returns the MCP tool definition for tree_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("tree_status",
		mcp.WithDescription(
			"Summarize the stored tree: depth, branches, task completion counts, "+
				"evolution history, and which levels came from fallback content.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the tree belongs to"),
		),
		mcp.WithString("path_name",
			mcp.Description("Named path within the project (default: general)"),
		),
	)
}

// Handle processes the tree_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	status, err := t.svc.GetStatus(ctx, projectID, req.GetString("path_name", ""))
	if err != nil {
		if err == hta.ErrNoTree {
			return mcp.NewToolResultError("no tree exists for this project; build one first"), nil
		}
		return mcp.NewToolResultError("tree status: " + err.Error()), nil
	}
	return jsonResult(status), nil
}
