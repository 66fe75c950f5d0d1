package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

func task(id, difficulty, minutes int, branch, title string) hta.Task {
	return hta.Task{
		ID:              id,
		Title:           title,
		Difficulty:      difficulty,
		DurationMinutes: minutes,
		Branch:          branch,
		Action:          "do the work",
		Validation:      "it is done",
	}
}

func TestSelectEmptyPool(t *testing.T) {
	p := Select(nil, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	assert.Nil(t, p.Primary)
	assert.Empty(t, p.Secondary)
	assert.Empty(t, p.Tertiary)
}

func TestSelectAllCompleted(t *testing.T) {
	done := task(1, 2, 20, "A", "Done work")
	done.Completed = true
	p := Select([]hta.Task{done}, ResourceContext{EnergyLevel: 3})
	assert.Nil(t, p.Primary)
}

func TestSelectSingleTask(t *testing.T) {
	p := Select([]hta.Task{task(1, 2, 20, "A", "Only task")}, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)
	assert.Equal(t, 1, p.Primary.ID)
	assert.Empty(t, p.Secondary)
	assert.Empty(t, p.Tertiary)
}

func TestSelectBoundsAreRespected(t *testing.T) {
	var tasks []hta.Task
	for i := 1; i <= 12; i++ {
		difficulty := 1 + (i % 5)
		tasks = append(tasks, task(i, difficulty, 20, "A", "Work item"))
	}

	p := Select(tasks, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)
	assert.LessOrEqual(t, len(p.Secondary), 3)
	assert.LessOrEqual(t, len(p.Tertiary), 2)

	// No task appears twice across the pipeline.
	seen := map[int]bool{p.Primary.ID: true}
	for _, s := range append(p.Secondary, p.Tertiary...) {
		assert.False(t, seen[s.ID], "task %d appears twice", s.ID)
		seen[s.ID] = true
	}
}

func TestSelectPrefersEnergyMatch(t *testing.T) {
	low := task(1, 1, 20, "A", "Review notes")      // low demand
	high := task(2, 5, 20, "A", "Build a showcase") // high demand

	tired := Select([]hta.Task{low, high}, ResourceContext{EnergyLevel: 1, TimeAvailableMinutes: 30})
	require.NotNil(t, tired.Primary)
	assert.Equal(t, 1, tired.Primary.ID)

	fresh := Select([]hta.Task{low, high}, ResourceContext{EnergyLevel: 5, TimeAvailableMinutes: 30})
	require.NotNil(t, fresh.Primary)
	assert.Equal(t, 2, fresh.Primary.ID)
}

func TestSelectPenalizesTasksLongerThanAvailableTime(t *testing.T) {
	short := task(1, 3, 20, "A", "Short drill")
	long := task(2, 3, 120, "A", "Long drill")

	p := Select([]hta.Task{long, short}, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 25})
	require.NotNil(t, p.Primary)
	assert.Equal(t, 1, p.Primary.ID)
}

func TestSelectPenalizesUnmetPrerequisites(t *testing.T) {
	blocked := task(1, 2, 20, "A", "Advanced drill")
	blocked.Prerequisites = []int{99}
	free := task(2, 2, 20, "A", "Open drill")

	p := Select([]hta.Task{blocked, free}, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)
	assert.Equal(t, 2, p.Primary.ID)
}

func TestSelectSatisfiedPrerequisitesDoNotPenalize(t *testing.T) {
	done := task(3, 1, 10, "A", "Basics")
	done.Completed = true
	gated := task(1, 2, 20, "A", "Advanced drill")
	gated.Prerequisites = []int{3}
	rival := task(2, 2, 20, "A", "Open drill")

	p := Select([]hta.Task{done, gated, rival}, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)
	// Tie resolves by lower id once the prerequisite is satisfied.
	assert.Equal(t, 1, p.Primary.ID)
}

func TestSelectTieBreaksByTierThenID(t *testing.T) {
	// Same score profile, different difficulty tiers. The verb shift puts
	// both tasks at the same energy demand.
	easy := task(5, 2, 0, "A", "Build the drill")
	medium := task(1, 3, 0, "A", "Scales session")

	p := Select([]hta.Task{medium, easy}, ResourceContext{EnergyLevel: 2})
	require.NotNil(t, p.Primary)
	assert.Equal(t, 5, p.Primary.ID)
}

func TestSelectVarietyCapsLimitEasyTasks(t *testing.T) {
	var tasks []hta.Task
	for i := 1; i <= 6; i++ {
		tasks = append(tasks, task(i, 1, 10, "A", "Easy item"))
	}
	tasks = append(tasks, task(7, 3, 30, "B", "Medium item"))

	p := Select(tasks, ResourceContext{EnergyLevel: 1, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)

	easyCount := 0
	all := append([]hta.Task{*p.Primary}, append(p.Secondary, p.Tertiary...)...)
	for _, s := range all {
		if s.Difficulty <= 2 {
			easyCount++
		}
	}
	assert.LessOrEqual(t, easyCount, 2)
}

func TestTaskEnergyVerbShifts(t *testing.T) {
	reading := hta.Task{Difficulty: 3, Title: "Read chapter four"}
	building := hta.Task{Difficulty: 3, Title: "Build the practice rig"}
	plain := hta.Task{Difficulty: 3, Title: "Scales session"}

	assert.Equal(t, taskEnergy(plain)-1, taskEnergy(reading))
	assert.Equal(t, taskEnergy(plain)+1, taskEnergy(building))
}

func TestSelectTertiaryPrefersDifferentBranch(t *testing.T) {
	var tasks []hta.Task
	for i := 1; i <= 4; i++ {
		tasks = append(tasks, task(i, 3, 20, "A", "Main branch work"))
	}
	tasks = append(tasks, task(5, 1, 20, "B", "Other branch work"))
	tasks = append(tasks, task(6, 2, 20, "A", "More main work"))

	p := Select(tasks, ResourceContext{EnergyLevel: 3, TimeAvailableMinutes: 30})
	require.NotNil(t, p.Primary)
	require.NotEmpty(t, p.Tertiary)

	branches := map[string]bool{}
	for _, s := range p.Tertiary {
		branches[s.Branch] = true
	}
	assert.True(t, branches["B"], "tertiary should include the other branch")
}
