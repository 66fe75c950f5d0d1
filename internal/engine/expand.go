package engine

import (
	"context"

	"github.com/BretMeraki/Forest7-15-sub001/internal/hta"
)

// Expand grows an existing tree to targetDepth, generating only the
// missing levels and attaching results to existing branches and tasks.
// Already-generated levels are left untouched, available depth never
// regresses, and a target at or below the current depth is a no-op, so
// repeated calls are idempotent.
func (e *Engine) Expand(ctx context.Context, tree *hta.Tree, targetDepth int, strict bool) error {
	if tree == nil {
		return hta.ErrNoTree
	}
	if targetDepth > hta.MaxDepth {
		targetDepth = hta.MaxDepth
	}
	if targetDepth <= tree.AvailableDepth {
		return nil
	}
	e.logger.Info().
		Int("from_depth", tree.AvailableDepth).
		Int("target_depth", targetDepth).
		Msg("expanding decomposition tree")
	return e.generateLevels(ctx, tree, tree.AvailableDepth+1, targetDepth, strict)
}
