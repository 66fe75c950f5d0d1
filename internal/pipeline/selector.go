// Package pipeline scores, diversifies, and partitions frontier tasks
// into the bounded primary/secondary/tertiary "next work" presentation.
package pipeline

import (
	"sort"
	"strings"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

// ResourceContext is the caller's current budget for work.
type ResourceContext struct {
	// EnergyLevel on a 1..5 scale.
	EnergyLevel int
	// TimeAvailableMinutes for the next work block.
	TimeAvailableMinutes int
}

// Pipeline is the bounded presentation of next-available tasks. An empty
// task pool yields the zero value, not an error.
type Pipeline struct {
	Primary   *hta.Task
	Secondary []hta.Task
	Tertiary  []hta.Task
}

// Difficulty tier boundaries and variety caps for the final candidate list.
const (
	maxCandidates = 8
	easyCap       = 2
	mediumCap     = 4
	hardCap       = 2
)

// Scoring weights. They sum to 1.
const (
	weightEnergy     = 0.30
	weightTime       = 0.25
	weightDifficulty = 0.20
	weightComplete   = 0.15
	weightReadiness  = 0.10
)

// Verbs that shift a task's effective energy demand.
var (
	highEnergyVerbs = []string{"build", "create", "write", "design", "practice", "record", "present"}
	lowEnergyVerbs  = []string{"read", "review", "watch", "listen", "reflect", "organize", "plan"}
)

type scored struct {
	task   hta.Task
	score  float64
	energy int
}

// Select partitions the incomplete tasks of the pool into a pipeline.
func Select(tasks []hta.Task, rc ResourceContext) Pipeline {
	pool := make([]hta.Task, 0, len(tasks))
	completed := map[int]bool{}
	for _, t := range tasks {
		if t.Completed {
			completed[t.ID] = true
			continue
		}
		pool = append(pool, t)
	}
	if len(pool) == 0 {
		return Pipeline{}
	}

	userEnergy := clamp(rc.EnergyLevel, 1, 5)
	ranked := make([]scored, 0, len(pool))
	for _, t := range pool {
		energy := taskEnergy(t)
		ranked = append(ranked, scored{
			task:   t,
			energy: energy,
			score:  score(t, energy, userEnergy, rc.TimeAvailableMinutes, completed),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		// Exact ties prefer the lower difficulty tier, then the lower id.
		ti, tj := tier(ranked[i].task.Difficulty), tier(ranked[j].task.Difficulty)
		if ti != tj {
			return ti < tj
		}
		return ranked[i].task.ID < ranked[j].task.ID
	})

	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	final := rebucket(ranked)

	p := Pipeline{}
	primary := final[0]
	p.Primary = &primary.task
	end := len(final)
	if end > 4 {
		end = 4
	}
	for _, s := range final[1:end] {
		p.Secondary = append(p.Secondary, s.task)
	}
	p.Tertiary = pickTertiary(final, primary)
	return p
}

// score is the weighted sum over the five match dimensions.
func score(t hta.Task, taskEnergy, userEnergy, timeAvailable int, completed map[int]bool) float64 {
	energyMatch := 1 - abs(taskEnergy-userEnergy)/5.0

	timeMatch := 1.0
	if t.DurationMinutes > 0 && timeAvailable > 0 {
		timeMatch = float64(timeAvailable) / float64(t.DurationMinutes)
		if timeMatch > 1 {
			timeMatch = 1
		}
	}

	difficultyMatch := 1.0
	if t.Difficulty > 4 {
		difficultyMatch = 0.7
	}

	completeness := 0.7
	if strings.TrimSpace(t.Action) != "" && strings.TrimSpace(t.Validation) != "" {
		completeness = 1
	}

	readiness := 1.0
	for _, pre := range t.Prerequisites {
		if !completed[pre] {
			readiness = 0.8
			break
		}
	}

	return energyMatch*weightEnergy +
		timeMatch*weightTime +
		difficultyMatch*weightDifficulty +
		completeness*weightComplete +
		readiness*weightReadiness
}

// taskEnergy estimates demand from difficulty, shifted by action verbs.
func taskEnergy(t hta.Task) int {
	energy := (t.Difficulty + 1) / 2 // ceil(difficulty/2)
	text := strings.ToLower(t.Title + " " + t.Action)
	for _, verb := range highEnergyVerbs {
		if strings.Contains(text, verb) {
			energy++
			break
		}
	}
	for _, verb := range lowEnergyVerbs {
		if strings.Contains(text, verb) {
			energy--
			break
		}
	}
	return clamp(energy, 1, 5)
}

// tier buckets difficulty: 0 easy (<=2), 1 medium (3-4), 2 hard (>=5).
func tier(difficulty int) int {
	switch {
	case difficulty <= 2:
		return 0
	case difficulty <= 4:
		return 1
	default:
		return 2
	}
}

// rebucket walks the ranked list in score order and keeps tasks while the
// per-tier variety caps allow, truncating to the candidate bound.
func rebucket(ranked []scored) []scored {
	counts := [3]int{}
	caps := [3]int{easyCap, mediumCap, hardCap}
	out := make([]scored, 0, maxCandidates)
	for _, s := range ranked {
		tr := tier(s.task.Difficulty)
		if counts[tr] >= caps[tr] {
			continue
		}
		counts[tr]++
		out = append(out, s)
		if len(out) == maxCandidates {
			break
		}
	}
	if len(out) == 0 {
		// Every candidate was capped out of its tier; keep the best ones.
		out = ranked
		if len(out) > maxCandidates {
			out = out[:maxCandidates]
		}
	}
	return out
}

// pickTertiary chooses up to two tasks from beyond the secondary ranks,
// preferring a lower-energy alternative to the primary, then a task from
// a different branch.
func pickTertiary(final []scored, primary scored) []hta.Task {
	if len(final) <= 4 {
		return nil
	}
	remainder := final[4:]
	var out []hta.Task
	used := map[int]bool{}

	for _, s := range remainder {
		if len(out) == 2 {
			return out
		}
		if s.energy < primary.energy {
			out = append(out, s.task)
			used[s.task.ID] = true
		}
	}
	for _, s := range remainder {
		if len(out) == 2 {
			return out
		}
		if !used[s.task.ID] && s.task.Branch != primary.task.Branch {
			out = append(out, s.task)
			used[s.task.ID] = true
		}
	}
	for _, s := range remainder {
		if len(out) == 2 {
			return out
		}
		if !used[s.task.ID] {
			out = append(out, s.task)
			used[s.task.ID] = true
		}
	}
	return out
}

func abs(v int) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
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
