// Package schema holds the fixed structural contracts enforced on
// content-generation responses: one schema per decomposition level plus
// four auxiliary analysis schemas. Schemas never change at runtime.
package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Level keys, in decomposition order.
const (
	KeyGoalContext               = "goalContext"
	KeyStrategicBranches         = "strategicBranches"
	KeyTaskDecomposition         = "taskDecomposition"
	KeyMicroParticles            = "microParticles"
	KeyNanoActions               = "nanoActions"
	KeyContextAdaptivePrimitives = "contextAdaptivePrimitives"

	// Auxiliary analysis contracts used by evolution tracking.
	KeyContextMining       = "contextMining"
	KeyDomainRelevance     = "domainRelevance"
	KeyPainPointValidation = "painPointValidation"
	KeyTreeEvolution       = "treeEvolution"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var files = map[string]string{
	KeyGoalContext:               "schemas/goal_context.json",
	KeyStrategicBranches:         "schemas/strategic_branches.json",
	KeyTaskDecomposition:         "schemas/task_decomposition.json",
	KeyMicroParticles:            "schemas/micro_particles.json",
	KeyNanoActions:               "schemas/nano_actions.json",
	KeyContextAdaptivePrimitives: "schemas/context_adaptive_primitives.json",
	KeyContextMining:             "schemas/context_mining.json",
	KeyDomainRelevance:           "schemas/domain_relevance.json",
	KeyPainPointValidation:       "schemas/pain_point_validation.json",
	KeyTreeEvolution:             "schemas/tree_evolution.json",
}

var compiled = mustCompile()

func mustCompile() map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(files))
	for key, path := range files {
		raw, err := schemaFS.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", key, err))
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", key, err))
		}
		out[key] = s
	}
	return out
}

// Get returns the raw schema document for a level key.
func Get(key string) (string, error) {
	path, ok := files[key]
	if !ok {
		return "", fmt.Errorf("unknown schema key %q", key)
	}
	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schema %s: %w", key, err)
	}
	return string(raw), nil
}

// Keys returns all registered schema keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(files))
	for key := range files {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// LevelKey maps a decomposition depth (1..6) to its schema key.
func LevelKey(depth int) (string, error) {
	switch depth {
	case 1:
		return KeyGoalContext, nil
	case 2:
		return KeyStrategicBranches, nil
	case 3:
		return KeyTaskDecomposition, nil
	case 4:
		return KeyMicroParticles, nil
	case 5:
		return KeyNanoActions, nil
	case 6:
		return KeyContextAdaptivePrimitives, nil
	default:
		return "", fmt.Errorf("no schema for depth %d", depth)
	}
}

// Validate checks a JSON document against the schema for the given key.
func Validate(key string, doc []byte) error {
	s, ok := compiled[key]
	if !ok {
		return fmt.Errorf("unknown schema key %q", key)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate against %s: %w", key, err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return fmt.Errorf("document does not match %s schema: %s", key, strings.Join(errs, "; "))
}
