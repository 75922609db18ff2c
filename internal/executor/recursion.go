package executor

import (
	"sync/atomic"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// RecursionState tracks composition limits across nested recipe
// execution. Depth and the recipe stack are per-branch; the total step
// counter is shared across the whole run, including parallel workers.
type RecursionState struct {
	total    *atomic.Int64
	maxTotal int
	depth    int
	maxDepth int
	stack    []string
}

// NewRecursionState creates the root state for a run.
func NewRecursionState(limits types.RecursionConfig, rootRecipe string) *RecursionState {
	return &RecursionState{
		total:    &atomic.Int64{},
		maxTotal: limits.MaxTotalSteps,
		depth:    1,
		maxDepth: limits.MaxDepth,
		stack:    []string{rootRecipe},
	}
}

// Depth returns the current nesting depth (1 for the root recipe).
func (r *RecursionState) Depth() int {
	return r.depth
}

// Stack returns the recipe call chain from root to current.
func (r *RecursionState) Stack() []string {
	out := make([]string, len(r.stack))
	copy(out, r.stack)
	return out
}

// TotalSteps returns the number of steps counted so far across the run.
func (r *RecursionState) TotalSteps() int {
	return int(r.total.Load())
}

// EnterRecipe returns the state for a sub-recipe one level deeper,
// checked against the depth limit before any child step runs. A
// per-step override may tighten or widen the child subtree's limits;
// the shared step counter is never reset.
func (r *RecursionState) EnterRecipe(name string, override *types.RecursionConfig) (*RecursionState, error) {
	maxDepth := r.maxDepth
	maxTotal := r.maxTotal
	if override != nil {
		if override.MaxDepth > 0 {
			maxDepth = override.MaxDepth
		}
		if override.MaxTotalSteps > 0 && override.MaxTotalSteps < maxTotal {
			maxTotal = override.MaxTotalSteps
		}
	}

	child := &RecursionState{
		total:    r.total,
		maxTotal: maxTotal,
		depth:    r.depth + 1,
		maxDepth: maxDepth,
		stack:    append(r.Stack(), name),
	}
	if child.depth > child.maxDepth {
		return nil, recerr.RecursionDepthExceeded(child.depth, child.maxDepth, child.stack)
	}
	return child, nil
}

// CountStep counts one unit of work against the shared total. Foreach
// iterations each count as one.
func (r *RecursionState) CountStep() error {
	if int(r.total.Add(1)) > r.maxTotal {
		return recerr.RecursionStepsExceeded(int(r.total.Load()), r.maxTotal, r.stack)
	}
	return nil
}

// ReserveSteps counts n units at once, used before launching parallel
// iterations so the limit check happens before any worker starts.
func (r *RecursionState) ReserveSteps(n int) error {
	if int(r.total.Add(int64(n))) > r.maxTotal {
		return recerr.RecursionStepsExceeded(int(r.total.Load()), r.maxTotal, r.stack)
	}
	return nil
}
