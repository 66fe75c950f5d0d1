package gateway

import (
	"context"
	"encoding/json"
)

// Unavailable is a Generator for when no generation backend is
// configured. Every call fails, which routes level content to the
// fallback skeletons.
type Unavailable struct {
	Reason string
}

// Generate always fails with the configured reason.
func (u Unavailable) Generate(_ context.Context, levelKey string, _ any, _ string) (json.RawMessage, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no generation backend configured"
	}
	return nil, &GenerationError{LevelKey: levelKey, Reason: reason}
}
