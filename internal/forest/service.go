// Package forest is the orchestration layer tying the decomposition
// engine, the persistence gateway, the evolution tracker, the semantic
// index, and the task pipeline selector into the operations exposed to
// the CLI and the MCP server.
package forest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/BretMeraki/Forest7-15-sub001/internal/engine"
	"github.com/BretMeraki/Forest7-15-sub001/internal/evolve"
	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/pipeline"
	"github.com/BretMeraki/Forest7-15-sub001/internal/store"
	"github.com/BretMeraki/Forest7-15-sub001/internal/vector"
)

// Service exposes the core operations over one persistence gateway.
type Service struct {
	store   store.Store
	engine  *engine.Engine
	tracker *evolve.Tracker
	index   vector.Index
	logger  zerolog.Logger
}

// New creates a service. The vector index may be nil; selection then
// runs without semantic boosting.
func New(st store.Store, eng *engine.Engine, tracker *evolve.Tracker, index vector.Index, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		engine:  eng,
		tracker: tracker,
		index:   index,
		logger:  logger,
	}
}

// BuildRequest carries the inputs for building a decomposition tree.
type BuildRequest struct {
	ProjectID string
	PathName  string
	Goal      string
	Context   map[string]any
	Options   engine.Options
}

// BuildTree builds (or returns) the tree for a project path. When a tree
// with frontier tasks already exists the call is a no-op returning the
// existing tree, unless ForceRegenerate is set.
func (s *Service) BuildTree(ctx context.Context, req BuildRequest) (*hta.Tree, error) {
	pathName := orDefault(req.PathName)

	if !req.Options.ForceRegenerate {
		existing, err := s.LoadTree(ctx, req.ProjectID, pathName)
		if err == nil && existing != nil && len(existing.FrontierTasks) > 0 {
			s.logger.Info().
				Str("project_id", req.ProjectID).
				Str("tree_id", existing.ID).
				Msg("tree already exists; returning it unchanged")
			return existing, nil
		}
	}

	tree, err := s.engine.Build(ctx, req.ProjectID, pathName, req.Goal, req.Context, req.Options)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, tree.ProjectID, tree.PathName, store.KeyTree, tree); err != nil {
		s.logger.Warn().Err(err).Msg("persist tree failed; results are not durable")
		tree.Warnings = append(tree.Warnings, "persistence unavailable: tree not saved")
	}
	s.indexTasks(ctx, tree)
	return tree, nil
}

// LoadTree loads the persisted tree for a project path. Returns
// (nil, nil) when none exists.
func (s *Service) LoadTree(ctx context.Context, projectID, pathName string) (*hta.Tree, error) {
	raw, err := s.store.Load(ctx, projectID, orDefault(pathName), store.KeyTree)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var tree hta.Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &tree, nil
}

// ExpandTree grows the stored tree to targetDepth and persists it.
func (s *Service) ExpandTree(ctx context.Context, projectID, pathName string, targetDepth int, strict bool) (*hta.Tree, error) {
	tree, err := s.LoadTree(ctx, projectID, pathName)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, hta.ErrNoTree
	}
	if err := s.engine.Expand(ctx, tree, targetDepth, strict); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, tree.ProjectID, tree.PathName, store.KeyTree, tree); err != nil {
		tree.Warnings = append(tree.Warnings, "persistence unavailable: tree not saved")
	}
	s.indexTasks(ctx, tree)
	return tree, nil
}

// CompletionResult reports what a completion triggered.
type CompletionResult struct {
	Recorded           bool
	EvolutionTriggered bool
	StrategiesApplied  []hta.EvolutionStrategy
	Warnings           []string
}

// RecordCompletion records a completion and, when the evolution policy
// permits, evolves the tree in the same call.
func (s *Service) RecordCompletion(ctx context.Context, projectID, pathName string, taskID int, rec hta.CompletionRecord) (CompletionResult, error) {
	tree, err := s.LoadTree(ctx, projectID, pathName)
	if err != nil {
		return CompletionResult{}, err
	}
	if tree == nil {
		return CompletionResult{}, hta.ErrNoTree
	}

	recorded, err := s.tracker.RecordCompletion(ctx, tree, taskID, rec)
	if err != nil {
		return CompletionResult{}, err
	}
	result := CompletionResult{
		Recorded: recorded.Recorded,
		Warnings: recorded.Warnings,
	}

	if s.tracker.ShouldEvolve(ctx, tree.ProjectID, tree.PathName, "completion") {
		event, err := s.tracker.Evolve(ctx, tree, "completion")
		if err != nil {
			// Evolution failure does not undo the recorded completion.
			s.logger.Warn().Err(err).Msg("evolution after completion failed")
			result.Warnings = append(result.Warnings, "evolution failed: "+err.Error())
			return result, nil
		}
		result.EvolutionTriggered = true
		result.StrategiesApplied = event.StrategiesApplied
		s.indexTasks(ctx, tree)
	}
	return result, nil
}

// GetPipeline selects the next-work pipeline from the stored tree. A
// non-empty focus string boosts semantically related tasks when a vector
// index is available.
func (s *Service) GetPipeline(ctx context.Context, projectID, pathName, focus string, rc pipeline.ResourceContext) (pipeline.Pipeline, error) {
	tree, err := s.LoadTree(ctx, projectID, pathName)
	if err != nil {
		return pipeline.Pipeline{}, err
	}
	if tree == nil {
		return pipeline.Pipeline{}, hta.ErrNoTree
	}

	tasks := tree.FrontierTasks
	if focus != "" && s.index != nil {
		if boosted, ok := s.boostByFocus(ctx, tree, focus); ok {
			tasks = boosted
		}
	}
	return pipeline.Select(tasks, rc), nil
}

// boostByFocus reorders tasks so semantic hits for the focus string come
// first, preserving relative order within each group. Any index failure
// keeps the original ordering.
func (s *Service) boostByFocus(ctx context.Context, tree *hta.Tree, focus string) ([]hta.Task, bool) {
	matches, err := s.index.Query(ctx, tree.ProjectID, vector.Embed(focus), 8, 0.1)
	if err != nil {
		s.logger.Debug().Err(err).Msg("semantic query failed; using priority order")
		return nil, false
	}
	hit := map[int]bool{}
	for _, m := range matches {
		if id, ok := m.Metadata["taskId"].(float64); ok {
			hit[int(id)] = true
		}
	}
	if len(hit) == 0 {
		return nil, false
	}
	boosted := make([]hta.Task, 0, len(tree.FrontierTasks))
	var rest []hta.Task
	for _, t := range tree.FrontierTasks {
		if hit[t.ID] {
			boosted = append(boosted, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(boosted, rest...), true
}

// Status is a summary of the stored tree.
type Status struct {
	TreeID         string         `json:"treeId"`
	Goal           string         `json:"goal"`
	AvailableDepth int            `json:"availableDepth"`
	MaxDepth       int            `json:"maxDepth"`
	Branches       int            `json:"branches"`
	TotalTasks     int            `json:"totalTasks"`
	CompletedTasks int            `json:"completedTasks"`
	Evolutions     int            `json:"evolutions"`
	LevelSources   map[int]string `json:"levelSources"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// GetStatus summarizes the stored tree.
func (s *Service) GetStatus(ctx context.Context, projectID, pathName string) (Status, error) {
	tree, err := s.LoadTree(ctx, projectID, pathName)
	if err != nil {
		return Status{}, err
	}
	if tree == nil {
		return Status{}, hta.ErrNoTree
	}
	completed := 0
	for _, t := range tree.FrontierTasks {
		if t.Completed {
			completed++
		}
	}
	sources := map[int]string{}
	for depth, tag := range tree.LevelSources {
		sources[depth] = string(tag)
	}
	return Status{
		TreeID:         tree.ID,
		Goal:           tree.Goal,
		AvailableDepth: tree.AvailableDepth,
		MaxDepth:       tree.MaxDepth,
		Branches:       len(tree.Branches),
		TotalTasks:     len(tree.FrontierTasks),
		CompletedTasks: completed,
		Evolutions:     len(tree.History),
		LevelSources:   sources,
		Warnings:       tree.Warnings,
	}, nil
}

// indexTasks mirrors the frontier tasks into the semantic index. Index
// failures degrade selection quality, never correctness, so they only
// log.
func (s *Service) indexTasks(ctx context.Context, tree *hta.Tree) {
	if s.index == nil || len(tree.FrontierTasks) == 0 {
		return
	}
	entries := make([]vector.Entry, 0, len(tree.FrontierTasks))
	for _, t := range tree.FrontierTasks {
		entries = append(entries, vector.Entry{
			ID:   strconv.Itoa(t.ID),
			Text: t.Title + " " + t.Description,
			Metadata: map[string]any{
				"taskId": float64(t.ID),
				"branch": t.Branch,
			},
		})
	}
	if err := s.index.Index(ctx, tree.ProjectID, tree.PathName, entries); err != nil {
		s.logger.Debug().Err(err).Msg("task indexing failed")
	}
}

func orDefault(pathName string) string {
	if pathName == "" {
		return store.DefaultPath
	}
	return pathName
}
