package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

// BranchPayload is the canonical wire form of one strategic branch.
type BranchPayload struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Priority         int      `json:"priority,omitempty"`
	DomainFocus      string   `json:"domain_focus,omitempty"`
	ExpectedOutcomes []string `json:"expected_outcomes,omitempty"`
}

// TaskPayload is the canonical wire form of one task within a branch.
type TaskPayload struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Difficulty      int      `json:"difficulty"`
	DurationMinutes int      `json:"duration_minutes"`
	Action          string   `json:"action,omitempty"`
	Validation      string   `json:"validation,omitempty"`
	Prerequisites   []string `json:"prerequisites,omitempty"`
}

// TaskSet is one taskDecomposition result.
type TaskSet struct {
	BranchName string        `json:"branch_name"`
	Tasks      []TaskPayload `json:"tasks"`
}

// MicroParticle is one micro-step within a task.
type MicroParticle struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Action          string `json:"action"`
	Validation      string `json:"validation"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Difficulty      int    `json:"difficulty,omitempty"`
}

// MicroParticleSet is one microParticles result, keyed to its task.
type MicroParticleSet struct {
	TaskID    int             `json:"task_id"`
	TaskTitle string          `json:"task_title,omitempty"`
	Particles []MicroParticle `json:"micro_particles"`
}

// NanoAction is one atomic action within a micro-step.
type NanoAction struct {
	ActionTitle      string   `json:"action_title"`
	SpecificSteps    []string `json:"specific_steps"`
	DurationMinutes  int      `json:"duration_minutes,omitempty"`
	ValidationMethod string   `json:"validation_method,omitempty"`
}

// NanoActionSet is one nanoActions result, keyed to its task and micro-step.
type NanoActionSet struct {
	TaskID     int          `json:"task_id"`
	MicroTitle string       `json:"micro_title"`
	Actions    []NanoAction `json:"nano_actions"`
}

// Adaptation is one context-specific variant of an atomic action.
type Adaptation struct {
	Context        string `json:"context"`
	AdaptedAction  string `json:"adapted_action"`
	EnergyRequired string `json:"energy_required,omitempty"`
}

// PrimitiveSet is one contextAdaptivePrimitives result.
type PrimitiveSet struct {
	TaskID      int          `json:"task_id"`
	BaseAction  string       `json:"base_action"`
	Adaptations []Adaptation `json:"context_adaptations"`
}

// NormalizeBranches maps a validated strategicBranches document into
// canonical branches. External shape variants (branches nested under
// "branches" or "strategic_branches", or a bare array) are all accepted
// here so the engine only ever sees canonical types. Branch names are
// sanitized: an empty or whitespace name is replaced by a positional
// fallback, and priority is reassigned by rank order so it is unique.
func NormalizeBranches(raw json.RawMessage, tag hta.SourceTag) ([]hta.Branch, error) {
	payloads, err := decodeBranchPayloads(raw)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("strategic branches document contains no branches")
	}
	out := make([]hta.Branch, 0, len(payloads))
	for i, p := range payloads {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = fmt.Sprintf("Branch %d", i+1)
		}
		out = append(out, hta.Branch{
			Name:             name,
			Description:      strings.TrimSpace(p.Description),
			Priority:         i + 1,
			DomainFocus:      p.DomainFocus,
			ExpectedOutcomes: p.ExpectedOutcomes,
			SourceTag:        tag,
		})
	}
	return out, nil
}

func decodeBranchPayloads(raw json.RawMessage) ([]BranchPayload, error) {
	var wrapped struct {
		Branches          []BranchPayload `json:"branches"`
		StrategicBranches []BranchPayload `json:"strategic_branches"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if len(wrapped.Branches) > 0 {
			return wrapped.Branches, nil
		}
		if len(wrapped.StrategicBranches) > 0 {
			return wrapped.StrategicBranches, nil
		}
	}
	var bare []BranchPayload
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}
	return nil, fmt.Errorf("unrecognized strategic branches shape")
}

// NormalizeTaskSet maps a validated taskDecomposition document into its
// canonical form, tolerating a bare task array without the branch wrapper.
func NormalizeTaskSet(raw json.RawMessage, branchName string) (TaskSet, error) {
	var set TaskSet
	if err := json.Unmarshal(raw, &set); err == nil && len(set.Tasks) > 0 {
		if strings.TrimSpace(set.BranchName) == "" {
			set.BranchName = branchName
		}
		return set, nil
	}
	var bare []TaskPayload
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return TaskSet{BranchName: branchName, Tasks: bare}, nil
	}
	return TaskSet{}, fmt.Errorf("unrecognized task decomposition shape for branch %q", branchName)
}

// ParseMicroParticleSets decodes a level-4 aggregate (array of
// microParticles results).
func ParseMicroParticleSets(raw json.RawMessage) ([]MicroParticleSet, error) {
	var sets []MicroParticleSet
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("parse micro particle sets: %w", err)
	}
	return sets, nil
}

// ParseNanoActionSets decodes a level-5 aggregate (array of nanoActions
// results).
func ParseNanoActionSets(raw json.RawMessage) ([]NanoActionSet, error) {
	var sets []NanoActionSet
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("parse nano action sets: %w", err)
	}
	return sets, nil
}
