package schema

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysCoverAllLevels(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 10)
	for depth := 1; depth <= 6; depth++ {
		key, err := LevelKey(depth)
		require.NoError(t, err)
		assert.Contains(t, keys, key)
	}
}

func TestLevelKeyRejectsOutOfRange(t *testing.T) {
	for _, depth := range []int{0, 7, -1} {
		_, err := LevelKey(depth)
		assert.Error(t, err, fmt.Sprintf("depth %d", depth))
	}
}

func TestGetUnknownKey(t *testing.T) {
	_, err := Get("nope")
	assert.Error(t, err)
}

func TestValidateGoalContext(t *testing.T) {
	valid := []byte(`{"context_summary": "Piano study for an adult beginner", "domain": "music"}`)
	assert.NoError(t, Validate(KeyGoalContext, valid))

	missing := []byte(`{"domain": "music"}`)
	err := Validate(KeyGoalContext, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context_summary")
}

func TestValidateBranchesCardinality(t *testing.T) {
	branch := `{"name": "Foundations", "description": "Basics first"}`
	twoBranches := []byte(fmt.Sprintf(`{"branches": [%s, %s]}`, branch, branch))
	assert.Error(t, Validate(KeyStrategicBranches, twoBranches), "fewer than 3 branches must fail")

	threeBranches := []byte(fmt.Sprintf(`{"branches": [%s, %s, %s]}`, branch, branch, branch))
	assert.NoError(t, Validate(KeyStrategicBranches, threeBranches))
}

func TestValidateBranchesAcceptsVariantShapes(t *testing.T) {
	branch := `{"name": "Foundations", "description": "Basics first"}`
	renamedWrapper := []byte(fmt.Sprintf(`{"strategic_branches": [%s, %s, %s]}`, branch, branch, branch))
	assert.NoError(t, Validate(KeyStrategicBranches, renamedWrapper))

	bare := []byte(fmt.Sprintf(`[%s, %s, %s]`, branch, branch, branch))
	assert.NoError(t, Validate(KeyStrategicBranches, bare))
}

func TestValidateTaskDecomposition(t *testing.T) {
	task := `{"title": "Practice scales", "description": "Daily scale work", "difficulty": 2, "duration_minutes": 20}`
	doc := []byte(fmt.Sprintf(`{"branch_name": "Foundations", "tasks": [%s, %s, %s]}`, task, task, task))
	assert.NoError(t, Validate(KeyTaskDecomposition, doc))

	badDifficulty := []byte(fmt.Sprintf(`{"branch_name": "Foundations", "tasks": [%s, %s, {"title": "x", "description": "y", "difficulty": 9, "duration_minutes": 5}]}`, task, task))
	assert.Error(t, Validate(KeyTaskDecomposition, badDifficulty))
}

func TestValidateTaskDecompositionAcceptsVariantShapes(t *testing.T) {
	task := `{"title": "Practice scales", "description": "Daily scale work", "difficulty": 2, "duration_minutes": 20}`

	// The branch wrapper is optional; normalization backfills the name.
	unnamed := []byte(fmt.Sprintf(`{"tasks": [%s, %s, %s]}`, task, task, task))
	assert.NoError(t, Validate(KeyTaskDecomposition, unnamed))

	bare := []byte(fmt.Sprintf(`[%s, %s, %s]`, task, task, task))
	assert.NoError(t, Validate(KeyTaskDecomposition, bare))

	bareTooFew := []byte(fmt.Sprintf(`[%s, %s]`, task, task))
	assert.Error(t, Validate(KeyTaskDecomposition, bareTooFew))
}

func TestValidateTreeEvolution(t *testing.T) {
	valid := []byte(`{
		"needs_depth_expansion": true,
		"needs_branch_expansion": false,
		"needs_content_refinement": false,
		"needs_goal_adjustment": false
	}`)
	assert.NoError(t, Validate(KeyTreeEvolution, valid))

	incomplete := []byte(`{"needs_depth_expansion": true}`)
	assert.Error(t, Validate(KeyTreeEvolution, incomplete))
}

func TestValidateUnknownKey(t *testing.T) {
	assert.Error(t, Validate("nope", []byte(`{}`)))
}

func TestValidateErrorListsAllViolationsSorted(t *testing.T) {
	err := Validate(KeyGoalContext, []byte(`{}`))
	require.Error(t, err)
	// Both missing required fields appear in one message.
	assert.Contains(t, err.Error(), "context_summary")
	assert.Contains(t, err.Error(), "domain")
}
