// Package goal derives goal characteristics from the goal text and
// caller-supplied context. Analysis is a pure function: no I/O, no
// generation-service calls, and no failure mode.
package goal

import (
	"sort"
	"strings"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

// Trait keywords, matched case-insensitively against the goal text.
var traitKeywords = map[string][]string{
	"learning":     {"learn", "study", "master", "understand", "practice"},
	"creation":     {"build", "create", "write", "design", "develop", "launch"},
	"career":       {"career", "job", "interview", "promotion", "portfolio"},
	"health":       {"health", "fitness", "exercise", "diet", "weight", "sleep"},
	"business":     {"business", "startup", "revenue", "customers", "market"},
	"technical":    {"code", "programming", "software", "api", "database", "deploy"},
	"communicate":  {"speak", "conversational", "language", "present", "negotiate"},
	"quantitative": {"math", "statistics", "finance", "budget", "invest"},
}

// Analyze computes goal characteristics. It always returns a value; an
// empty goal yields the lowest complexity class with a confidence penalty
// rather than an error.
func Analyze(goalText string, goalCtx map[string]any) hta.GoalCharacteristics {
	text := strings.TrimSpace(goalText)
	if text == "" {
		return hta.GoalCharacteristics{
			ComplexityClass:  hta.ComplexityLow,
			Score:            0,
			Traits:           []string{},
			RecommendedDepth: 4,
			Confidence:       0.3,
		}
	}

	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	score := 0.0
	traits := make([]string, 0, 4)
	for trait, keywords := range traitKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				traits = append(traits, trait)
				score += 1.5
				break
			}
		}
	}
	sort.Strings(traits)

	// Longer, multi-clause goals decompose into more levels of work.
	score += float64(len(words)) * 0.25
	if strings.ContainsAny(text, ",;") || strings.Contains(lower, " and ") {
		score += 2
	}
	if hasConstraints(goalCtx) {
		score += 1
	}

	class := hta.ComplexityLow
	switch {
	case score >= 8:
		class = hta.ComplexityHigh
	case score >= 4:
		class = hta.ComplexityMedium
	}

	chars := hta.GoalCharacteristics{
		ComplexityClass:           class,
		Score:                     score,
		Traits:                    traits,
		RequiresDeepDecomposition: class == hta.ComplexityHigh,
		BenefitsFromGranularity:   class != hta.ComplexityLow || len(traits) > 1,
		Confidence:                1,
	}
	chars.RecommendedDepth = recommendDepth(chars, goalCtx)
	return chars
}

// recommendDepth returns the default target depth. Full depth by default;
// reduced to 4 only when the caller explicitly marks the goal as simple
// and urgency is high. Complexity never raises it past the maximum.
func recommendDepth(chars hta.GoalCharacteristics, goalCtx map[string]any) int {
	depth := hta.MaxDepth
	if boolContext(goalCtx, "simple") && stringContext(goalCtx, "urgency") == "high" {
		depth = 4
	}
	if depth > hta.MaxDepth {
		depth = hta.MaxDepth
	}
	return depth
}

func hasConstraints(goalCtx map[string]any) bool {
	if goalCtx == nil {
		return false
	}
	v, ok := goalCtx["constraints"]
	if !ok {
		return false
	}
	switch c := v.(type) {
	case []any:
		return len(c) > 0
	case []string:
		return len(c) > 0
	case string:
		return strings.TrimSpace(c) != ""
	default:
		return false
	}
}

func boolContext(goalCtx map[string]any, key string) bool {
	if goalCtx == nil {
		return false
	}
	v, ok := goalCtx[key].(bool)
	return ok && v
}

func stringContext(goalCtx map[string]any, key string) string {
	if goalCtx == nil {
		return ""
	}
	v, _ := goalCtx[key].(string)
	return strings.ToLower(strings.TrimSpace(v))
}
