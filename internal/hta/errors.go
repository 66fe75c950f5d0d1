package hta

import "errors"

// ErrMissingGoal is returned when no goal text is resolvable. A tree
// cannot be built without a goal, so this is never recovered by fallback.
var ErrMissingGoal = errors.New("no goal text provided; a tree cannot be built without a goal")

// ErrNoTree is returned by operations that require an existing tree.
var ErrNoTree = errors.New("no HTA tree found for this project; build a tree first")
