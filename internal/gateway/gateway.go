// Package gateway defines the content-generation boundary: the consumed
// Generator interface, the failure type surfaced when a call cannot
// produce schema-valid content, and the normalization step that maps
// accepted external shapes into canonical types before they enter the
// decomposition engine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Generator produces a JSON value matching the registered schema for the
// given level key. Implementations make at most one logical call per
// invocation and perform no implicit retries; retry and fallback policy
// belongs to the decomposition engine.
type Generator interface {
	Generate(ctx context.Context, levelKey string, payload any, instruction string) (json.RawMessage, error)
}

// GenerationError reports a failed or schema-invalid generation call.
type GenerationError struct {
	LevelKey string
	Reason   string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed for %s: %s: %v", e.LevelKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed for %s: %s", e.LevelKey, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AsGenerationError reports whether err is (or wraps) a GenerationError.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}
