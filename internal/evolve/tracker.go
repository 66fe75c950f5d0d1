// Package evolve tracks task completions, accumulates derived context,
// and decides when a tree should be re-evolved. Trigger decisions are
// pure functions of recorded state, guarded by a cooldown and a minimum
// sample count.
package evolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
	"github.com/BretMeraki/Forest7-15-sub001/internal/store"
)

// Defaults for the evolution policy.
const (
	DefaultCooldown   = 5 * time.Minute
	DefaultMinSamples = 3
	// recentWindow is how many of the latest completions the trigger and
	// needs predicates inspect.
	recentWindow = 5
)

// Needs is the evolution needs vector computed from recent completions
// and accumulated context.
type Needs struct {
	DepthExpansion    bool
	BranchExpansion   bool
	ContentRefinement bool
	GoalAdjustment    bool
}

// Any reports whether any strategy is needed.
func (n Needs) Any() bool {
	return n.DepthExpansion || n.BranchExpansion || n.ContentRefinement || n.GoalAdjustment
}

// Expander grows a tree by one or more levels. Satisfied by the
// decomposition engine.
type Expander interface {
	Expand(ctx context.Context, tree *hta.Tree, targetDepth int, strict bool) error
}

// projectState is the per-project evolution state. The in-memory copy is
// the source of truth during a process lifetime; it is mirrored to the
// persistence gateway on every mutation.
type projectState struct {
	History       []hta.CompletionRecord `json:"history"`
	Context       hta.AccumulatedContext `json:"context"`
	LastEvolution time.Time              `json:"lastEvolution"`
}

// Tracker owns per-project evolution state. One instance per process;
// injected, never an ambient singleton.
type Tracker struct {
	store      store.Store
	expander   Expander
	cooldown   time.Duration
	minSamples int
	now        func() time.Time
	logger     zerolog.Logger

	mu       sync.Mutex
	projects map[string]*projectState
}

// Options configures a Tracker. Zero values select the defaults.
type Options struct {
	Cooldown   time.Duration
	MinSamples int
	Now        func() time.Time
}

// NewTracker creates a tracker backed by the given persistence gateway.
func NewTracker(st store.Store, expander Expander, opts Options, logger zerolog.Logger) *Tracker {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		store:      st,
		expander:   expander,
		cooldown:   opts.Cooldown,
		minSamples: opts.MinSamples,
		now:        opts.Now,
		logger:     logger,
		projects:   map[string]*projectState{},
	}
}

func stateKey(projectID, pathName string) string {
	return projectID + "/" + pathName
}

// state returns the in-memory state for a project, loading the persisted
// mirror on first access.
func (t *Tracker) state(ctx context.Context, projectID, pathName string) *projectState {
	key := stateKey(projectID, pathName)
	if st, ok := t.projects[key]; ok {
		return st
	}
	st := &projectState{}
	if raw, err := t.store.Load(ctx, projectID, pathName, store.KeyCompletionHistory); err == nil && raw != nil {
		_ = json.Unmarshal(raw, &st.History)
	}
	if raw, err := t.store.Load(ctx, projectID, pathName, store.KeyAccumulatedCtx); err == nil && raw != nil {
		_ = json.Unmarshal(raw, &st.Context)
	}
	// The cooldown clock survives restarts: seed it from the last
	// persisted evolution event.
	if raw, err := t.store.Load(ctx, projectID, pathName, store.KeyTree); err == nil && raw != nil {
		var doc struct {
			History []hta.EvolutionEvent `json:"evolutionHistory"`
		}
		if json.Unmarshal(raw, &doc) == nil && len(doc.History) > 0 {
			st.LastEvolution = doc.History[len(doc.History)-1].Timestamp
		}
	}
	t.projects[key] = st
	return st
}

// RecordResult reports the outcome of recording one completion.
type RecordResult struct {
	// Recorded is false when the task was already completed; the history
	// append still happens, the task flag does not change again.
	Recorded bool
	// Warnings carries persistence degradation notices.
	Warnings []string
}

// RecordCompletion appends the record to history, folds it into the
// accumulated context, marks the task completed, and mirrors tree,
// history, and context to the persistence gateway. Persistence failures
// degrade to in-memory-only for the session and are reported as warnings,
// not errors.
func (t *Tracker) RecordCompletion(ctx context.Context, tree *hta.Tree, taskID int, rec hta.CompletionRecord) (RecordResult, error) {
	if tree == nil {
		return RecordResult{}, hta.ErrNoTree
	}
	if _, ok := tree.Task(taskID); !ok {
		return RecordResult{}, fmt.Errorf("task %d not found in tree", taskID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = t.now()
	}
	rec.TaskID = taskID

	st := t.state(ctx, tree.ProjectID, tree.PathName)
	recorded := tree.MarkCompleted(taskID, rec)
	st.History = append(st.History, rec)
	st.Context.Absorb(rec)

	result := RecordResult{Recorded: recorded}
	result.Warnings = t.persist(ctx, tree, st)

	t.logger.Info().
		Int("task_id", taskID).
		Bool("first_completion", recorded).
		Int("history_len", len(st.History)).
		Msg("recorded task completion")
	return result, nil
}

func (t *Tracker) persist(ctx context.Context, tree *hta.Tree, st *projectState) []string {
	var warnings []string
	if err := t.store.Save(ctx, tree.ProjectID, tree.PathName, store.KeyTree, tree); err != nil {
		t.logger.Warn().Err(err).Msg("persist tree failed; results are not durable")
		warnings = append(warnings, "persistence unavailable: tree not saved")
	}
	if err := t.store.Save(ctx, tree.ProjectID, tree.PathName, store.KeyCompletionHistory, st.History); err != nil {
		warnings = append(warnings, "persistence unavailable: completion history not saved")
	}
	if err := t.store.Save(ctx, tree.ProjectID, tree.PathName, store.KeyAccumulatedCtx, st.Context); err != nil {
		warnings = append(warnings, "persistence unavailable: accumulated context not saved")
	}
	return warnings
}

// ShouldEvolve decides whether a trigger may evolve the tree now. False
// while the cooldown holds or too few completions are recorded; otherwise
// true iff any of the last completions in the window carries a
// breakthrough, a new interest, or a struggling area. The cooldown acts
// as a soft mutex: a request arriving before expiry is rejected, not
// queued.
func (t *Tracker) ShouldEvolve(ctx context.Context, projectID, pathName, trigger string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(ctx, projectID, pathName)

	if t.now().Sub(st.LastEvolution) < t.cooldown {
		return false
	}
	if len(st.History) < t.minSamples {
		return false
	}
	for _, rec := range recent(st.History) {
		if len(rec.Breakthroughs) > 0 || len(rec.NextInterests) > 0 || len(rec.StrugglingAreas) > 0 {
			return true
		}
	}
	return false
}

// ComputeNeeds derives the needs vector from recorded state. Pure given
// the state; no hidden randomness.
func (t *Tracker) ComputeNeeds(ctx context.Context, projectID, pathName string, tree *hta.Tree) Needs {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(ctx, projectID, pathName)
	return computeNeeds(st, tree)
}

func computeNeeds(st *projectState, tree *hta.Tree) Needs {
	var needs Needs
	for _, rec := range recent(st.History) {
		if len(rec.Breakthroughs) > 0 && tree.AvailableDepth < tree.MaxDepth {
			needs.DepthExpansion = true
		}
		if len(rec.NextInterests) > 0 {
			needs.BranchExpansion = true
		}
		if len(rec.StrugglingAreas) > 0 {
			needs.ContentRefinement = true
		}
	}
	for _, struggle := range st.Context.Struggles {
		if !struggle.Resolved && struggle.Frequency >= 3 {
			needs.GoalAdjustment = true
			break
		}
	}
	return needs
}

// Evolve computes the needs vector and applies the corresponding
// strategies in a fixed order, appending one evolution event and
// updating the evolution timestamp.
func (t *Tracker) Evolve(ctx context.Context, tree *hta.Tree, trigger string) (*hta.EvolutionEvent, error) {
	if tree == nil {
		return nil, hta.ErrNoTree
	}

	t.mu.Lock()
	st := t.state(ctx, tree.ProjectID, tree.PathName)
	needs := computeNeeds(st, tree)
	t.mu.Unlock()

	var applied []hta.EvolutionStrategy
	if needs.DepthExpansion {
		if err := t.expander.Expand(ctx, tree, tree.AvailableDepth+1, false); err != nil {
			return nil, fmt.Errorf("depth expansion: %w", err)
		}
		applied = append(applied, hta.StrategyDepthExpansion)
	}
	if needs.BranchExpansion {
		t.expandBranches(ctx, tree)
		applied = append(applied, hta.StrategyBranchExpansion)
	}
	if needs.ContentRefinement {
		t.refineContent(ctx, tree)
		applied = append(applied, hta.StrategyContentRefinement)
	}
	if needs.GoalAdjustment {
		t.adjustGoal(ctx, tree)
		applied = append(applied, hta.StrategyGoalAdjustment)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	event := hta.EvolutionEvent{
		ID:                uuid.NewString(),
		Trigger:           trigger,
		StrategiesApplied: applied,
		Timestamp:         now,
	}
	tree.History = append(tree.History, event)
	st.LastEvolution = now
	tree.UpdatedAt = now
	warnings := t.persist(ctx, tree, st)
	tree.Warnings = append(tree.Warnings, warnings...)

	t.logger.Info().
		Str("trigger", trigger).
		Int("strategies", len(applied)).
		Msg("evolved decomposition tree")
	return &event, nil
}

// expandBranches grafts a branch for the most frequent unserved interest.
func (t *Tracker) expandBranches(ctx context.Context, tree *hta.Tree) {
	t.mu.Lock()
	st := t.state(ctx, tree.ProjectID, tree.PathName)
	topic := topUnservedInterest(st, tree)
	t.mu.Unlock()
	if topic == "" {
		return
	}

	branch := hta.Branch{
		Name:        "Explore: " + topic,
		Description: "Branch added from an emerging interest in " + topic,
		Priority:    len(tree.Branches) + 1,
		DomainFocus: topic,
		SourceTag:   hta.SourceFallback,
	}
	ordinal := 1
	id := tree.NextTaskID()
	task := hta.Task{
		ID:                  id,
		Title:               "First look at " + topic,
		Description:         "Spend one session exploring " + topic + " in the context of: " + tree.Goal,
		Difficulty:          2,
		DurationMinutes:     25,
		Branch:              branch.Name,
		Priority:            branch.Priority*100 + ordinal*10,
		Action:              "Survey " + topic + " and note what looks most useful",
		Validation:          "Written notes with at least three observations",
		DecompositionDepth:  3,
		CanDecomposeFurther: true,
		SourceTag:           hta.SourceFallback,
	}
	branch.TaskIDs = append(branch.TaskIDs, id)
	tree.Branches = append(tree.Branches, branch)
	tree.FrontierTasks = append(tree.FrontierTasks, task)
}

func topUnservedInterest(st *projectState, tree *hta.Tree) string {
	existing := map[string]bool{}
	for _, branch := range tree.Branches {
		existing[strings.ToLower(branch.DomainFocus)] = true
		existing[strings.ToLower(branch.Name)] = true
	}
	best := ""
	bestFreq := 0
	for _, interest := range st.Context.Interests {
		topic := strings.ToLower(strings.TrimSpace(interest.Topic))
		if topic == "" || existing[topic] || existing["explore: "+topic] {
			continue
		}
		if interest.Frequency > bestFreq {
			best, bestFreq = interest.Topic, interest.Frequency
		}
	}
	return best
}

// refineContent flags incomplete tasks in struggling areas for further
// decomposition.
func (t *Tracker) refineContent(ctx context.Context, tree *hta.Tree) {
	t.mu.Lock()
	st := t.state(ctx, tree.ProjectID, tree.PathName)
	topics := make([]string, 0, len(st.Context.Struggles))
	for _, struggle := range st.Context.Struggles {
		if !struggle.Resolved {
			topics = append(topics, strings.ToLower(struggle.Topic))
		}
	}
	t.mu.Unlock()

	for i := range tree.FrontierTasks {
		task := &tree.FrontierTasks[i]
		if task.Completed {
			continue
		}
		text := strings.ToLower(task.Title + " " + task.Description)
		for _, topic := range topics {
			if topic != "" && strings.Contains(text, topic) {
				task.CanDecomposeFurther = true
				break
			}
		}
	}
}

// adjustGoal records persistent struggles on the tree as traits so the
// next regeneration can account for them.
func (t *Tracker) adjustGoal(ctx context.Context, tree *hta.Tree) {
	t.mu.Lock()
	st := t.state(ctx, tree.ProjectID, tree.PathName)
	var topics []string
	for _, struggle := range st.Context.Struggles {
		if !struggle.Resolved && struggle.Frequency >= 3 {
			topics = append(topics, struggle.Topic)
		}
	}
	t.mu.Unlock()

	for _, topic := range topics {
		trait := "persistent_struggle:" + strings.ToLower(strings.TrimSpace(topic))
		if !containsString(tree.Characteristics.Traits, trait) {
			tree.Characteristics.Traits = append(tree.Characteristics.Traits, trait)
		}
	}
}

func recent(history []hta.CompletionRecord) []hta.CompletionRecord {
	if len(history) <= recentWindow {
		return history
	}
	return history[len(history)-recentWindow:]
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
