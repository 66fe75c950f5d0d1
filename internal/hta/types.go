// Package hta defines the canonical data model for hierarchical task
// analysis trees: the six-level decomposition aggregate, its branches and
// frontier tasks, and the completion/evolution records attached to them.
package hta

import (
	"encoding/json"
	"strings"
	"time"
)

// MaxDepth is the fixed upper bound on decomposition depth.
const MaxDepth = 6

// ComplexityClass buckets a goal by how much decomposition it warrants.
type ComplexityClass string

const (
	ComplexityLow    ComplexityClass = "low"
	ComplexityMedium ComplexityClass = "medium"
	ComplexityHigh   ComplexityClass = "high"
)

// SourceTag records whether level content came from the generation
// service or from the deterministic fallback skeleton.
type SourceTag string

const (
	SourceGenerated SourceTag = "generated"
	SourceFallback  SourceTag = "fallback"
)

// EvolutionStrategy identifies one tree mutation applied during evolution.
type EvolutionStrategy string

const (
	StrategyDepthExpansion    EvolutionStrategy = "depth_expansion"
	StrategyBranchExpansion   EvolutionStrategy = "branch_expansion"
	StrategyContentRefinement EvolutionStrategy = "content_refinement"
	StrategyGoalAdjustment    EvolutionStrategy = "goal_adjustment"
)

// GoalCharacteristics is the value object derived from the goal text and
// caller context. It is recomputed whenever the goal text changes and is
// persisted only as part of the tree.
type GoalCharacteristics struct {
	ComplexityClass           ComplexityClass `json:"complexityClass"`
	Score                     float64         `json:"score"`
	Traits                    []string        `json:"traits"`
	RequiresDeepDecomposition bool            `json:"requiresDeepDecomposition"`
	BenefitsFromGranularity   bool            `json:"benefitsFromGranularity"`
	RecommendedDepth          int             `json:"recommendedDepth"`
	Confidence                float64         `json:"confidence"`
}

// Branch is a top-level strategic grouping of tasks under a goal.
// Priority is a unique rank within the tree and determines traversal order.
type Branch struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Priority         int       `json:"priority"`
	DomainFocus      string    `json:"domainFocus,omitempty"`
	ExpectedOutcomes []string  `json:"expectedOutcomes,omitempty"`
	TaskIDs          []int     `json:"tasks"`
	SourceTag        SourceTag `json:"sourceTag"`
}

// Task is a leaf unit of actionable work exposed to selection logic.
type Task struct {
	ID                  int                `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	Difficulty          int                `json:"difficulty"`
	DurationMinutes     int                `json:"durationEstimate"`
	Branch              string             `json:"branch"`
	Priority            int                `json:"priority"`
	Prerequisites       []int              `json:"prerequisites,omitempty"`
	Action              string             `json:"action,omitempty"`
	Validation          string             `json:"validation,omitempty"`
	Completed           bool               `json:"completed"`
	Completion          *CompletionRecord  `json:"completionRecord,omitempty"`
	DecompositionDepth  int                `json:"decompositionDepth"`
	CanDecomposeFurther bool               `json:"canDecomposeFurther"`
	SourceTag           SourceTag          `json:"sourceTag"`
}

// CompletionRecord captures the outcome of finishing one task.
// Immutable once attached.
type CompletionRecord struct {
	TaskID           int       `json:"taskId"`
	DurationMinutes  int       `json:"duration"`
	Quality          int       `json:"quality"`
	DifficultyRating int       `json:"difficultyRating"`
	Reflections      string    `json:"reflections,omitempty"`
	LearningOutcomes []string  `json:"learningOutcomes,omitempty"`
	StrugglingAreas  []string  `json:"strugglingAreas,omitempty"`
	Breakthroughs    []string  `json:"breakthroughs,omitempty"`
	NextInterests    []string  `json:"nextInterests,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Struggle tracks a recurring problem area across completions.
type Struggle struct {
	Topic     string    `json:"topic"`
	Frequency int       `json:"frequency"`
	Resolved  bool      `json:"resolved"`
	FirstSeen time.Time `json:"firstSeen"`
}

// Interest tracks an emerging topic of interest across completions.
type Interest struct {
	Topic     string    `json:"topic"`
	Frequency int       `json:"frequency"`
	FirstSeen time.Time `json:"firstSeen"`
}

// AccumulatedContext aggregates completion records into derived per-tree
// context. Updates are additive; it is never reset.
type AccumulatedContext struct {
	LearningOutcomes    map[string]int `json:"learningOutcomes"`
	Struggles           []Struggle     `json:"struggles"`
	Interests           []Interest     `json:"interests"`
	PreferredDifficulty float64        `json:"preferredDifficulty"`
	PreferredDuration   float64        `json:"preferredDuration"`
	Samples             int            `json:"samples"`
}

// Absorb folds one completion record into the accumulated context.
func (c *AccumulatedContext) Absorb(rec CompletionRecord) {
	if c.LearningOutcomes == nil {
		c.LearningOutcomes = map[string]int{}
	}
	for _, outcome := range rec.LearningOutcomes {
		key := normalizeTopic(outcome)
		if key == "" {
			continue
		}
		c.LearningOutcomes[key]++
	}
	for _, area := range rec.StrugglingAreas {
		c.addStruggle(area, rec.CompletedAt)
	}
	for _, topic := range rec.NextInterests {
		c.addInterest(topic, rec.CompletedAt)
	}
	// Running averages over all samples seen so far.
	n := float64(c.Samples)
	c.PreferredDifficulty = (c.PreferredDifficulty*n + float64(rec.DifficultyRating)) / (n + 1)
	c.PreferredDuration = (c.PreferredDuration*n + float64(rec.DurationMinutes)) / (n + 1)
	c.Samples++
}

func (c *AccumulatedContext) addStruggle(topic string, seen time.Time) {
	key := normalizeTopic(topic)
	if key == "" {
		return
	}
	for i := range c.Struggles {
		if normalizeTopic(c.Struggles[i].Topic) == key {
			c.Struggles[i].Frequency++
			c.Struggles[i].Resolved = false
			return
		}
	}
	c.Struggles = append(c.Struggles, Struggle{Topic: topic, Frequency: 1, FirstSeen: seen})
}

func (c *AccumulatedContext) addInterest(topic string, seen time.Time) {
	key := normalizeTopic(topic)
	if key == "" {
		return
	}
	for i := range c.Interests {
		if normalizeTopic(c.Interests[i].Topic) == key {
			c.Interests[i].Frequency++
			return
		}
	}
	c.Interests = append(c.Interests, Interest{Topic: topic, Frequency: 1, FirstSeen: seen})
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// EvolutionEvent records one applied evolution, appended to the tree's
// history. Immutable.
type EvolutionEvent struct {
	ID                string              `json:"id"`
	Trigger           string              `json:"trigger"`
	StrategiesApplied []EvolutionStrategy `json:"strategiesApplied"`
	Timestamp         time.Time           `json:"timestamp"`
}

// Tree is the central aggregate: a six-level hierarchical decomposition of
// one goal. Levels 1..AvailableDepth hold validated level content; deeper
// levels are absent until expanded. AvailableDepth only increases.
type Tree struct {
	ID              string                  `json:"id"`
	ProjectID       string                  `json:"projectId"`
	PathName        string                  `json:"pathName"`
	Goal            string                  `json:"goal"`
	Context         map[string]any          `json:"context,omitempty"`
	Characteristics GoalCharacteristics     `json:"goalCharacteristics"`
	Levels          map[int]json.RawMessage `json:"levels"`
	LevelSources    map[int]SourceTag       `json:"levelSources"`
	AvailableDepth  int                     `json:"availableDepth"`
	MaxDepth        int                     `json:"maxDepth"`
	Branches        []Branch                `json:"strategicBranches"`
	FrontierTasks   []Task                  `json:"frontierTasks"`
	History         []EvolutionEvent        `json:"evolutionHistory"`
	Warnings        []string                `json:"warnings,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// NewTree creates an empty tree for a goal. Levels are populated by the
// decomposition engine.
func NewTree(id, projectID, pathName, goal string, goalCtx map[string]any, chars GoalCharacteristics) *Tree {
	now := time.Now().UTC()
	return &Tree{
		ID:              id,
		ProjectID:       projectID,
		PathName:        pathName,
		Goal:            goal,
		Context:         goalCtx,
		Characteristics: chars,
		Levels:          map[int]json.RawMessage{},
		LevelSources:    map[int]SourceTag{},
		MaxDepth:        MaxDepth,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Task returns a pointer to the frontier task with the given id.
func (t *Tree) Task(id int) (*Task, bool) {
	for i := range t.FrontierTasks {
		if t.FrontierTasks[i].ID == id {
			return &t.FrontierTasks[i], true
		}
	}
	return nil, false
}

// NextTaskID returns the next monotonically increasing task id.
func (t *Tree) NextTaskID() int {
	max := 0
	for i := range t.FrontierTasks {
		if t.FrontierTasks[i].ID > max {
			max = t.FrontierTasks[i].ID
		}
	}
	return max + 1
}

// MarkCompleted transitions a task to completed and attaches the record.
// The transition happens exactly once; repeated calls for the same task
// leave the first record in place and report false.
func (t *Tree) MarkCompleted(id int, rec CompletionRecord) bool {
	task, ok := t.Task(id)
	if !ok || task.Completed {
		return false
	}
	task.Completed = true
	record := rec
	record.TaskID = id
	task.Completion = &record
	t.UpdatedAt = time.Now().UTC()
	return true
}

// SetLevel attaches validated content for a level and raises
// AvailableDepth. Levels are never deleted once populated.
func (t *Tree) SetLevel(depth int, content json.RawMessage, tag SourceTag) {
	t.Levels[depth] = content
	t.LevelSources[depth] = tag
	if depth > t.AvailableDepth {
		t.AvailableDepth = depth
	}
	if tag == SourceFallback {
		t.Warnings = append(t.Warnings, "level "+levelName(depth)+" content substituted by fallback skeleton")
	}
	t.UpdatedAt = time.Now().UTC()
}

// IncompleteTasks returns frontier tasks not yet completed.
func (t *Tree) IncompleteTasks() []Task {
	out := make([]Task, 0, len(t.FrontierTasks))
	for _, task := range t.FrontierTasks {
		if !task.Completed {
			out = append(out, task)
		}
	}
	return out
}

func levelName(depth int) string {
	switch depth {
	case 1:
		return "1 (goal context)"
	case 2:
		return "2 (strategic branches)"
	case 3:
		return "3 (tasks)"
	case 4:
		return "4 (micro-steps)"
	case 5:
		return "5 (atomic actions)"
	case 6:
		return "6 (context variants)"
	default:
		return "?"
	}
}
