package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/session"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// runForeach executes a step once per element of its foreach source.
// The step's output gets the last iteration's result; collect, when
// set, gets the full list ordered by input index. An empty source skips
// the step, binding collect to an empty list.
//
// Source resolution failures, non-list sources, and oversize lists are
// configuration errors that bypass on_error.
func (e *Executor) runForeach(ctx context.Context, env *runEnv, step *types.Step) (any, bool, error) {
	source, err := env.resolver().Eval(step.Foreach)
	if err != nil {
		return nil, false, err
	}

	items, ok := source.([]any)
	if !ok {
		return nil, false, recerr.ForeachNotList(step.ID, step.Foreach, source)
	}
	if len(items) > step.MaxIter() {
		return nil, false, recerr.ForeachLimitExceeded(step.ID, len(items), step.MaxIter())
	}

	if len(items) == 0 {
		if step.Collect != "" {
			if err := env.ec.Set(step.Collect, []any{}); err != nil {
				return nil, false, err
			}
		}
		env.logger.Info("foreach skipped, empty source", "step", step.ID)
		return nil, true, nil
	}

	var results []any
	if step.Parallel {
		results, err = e.runParallel(ctx, env, step, items)
	} else {
		results, err = e.runSequential(ctx, env, step, items)
	}
	if err != nil {
		return nil, false, err
	}

	if step.Collect != "" {
		if err := env.ec.Set(step.Collect, results); err != nil {
			return nil, false, err
		}
	}
	return results[len(results)-1], false, nil
}

// runSequential executes iterations in order, each under a pushed loop
// scope so the loop variable never leaks into the base context. An
// on_error continue policy records a nil result for the failed
// iteration and moves on.
func (e *Executor) runSequential(ctx context.Context, env *runEnv, step *types.Step, items []any) ([]any, error) {
	loopVar := step.LoopVar()
	results := make([]any, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := env.rs.CountStep(); err != nil {
			return nil, err
		}

		env.ec.Push(map[string]any{loopVar: item})
		result, err := e.runUnit(ctx, env, step, env.ec)
		env.ec.Pop()

		if err != nil {
			if recerr.IsConfiguration(err) {
				return nil, err
			}
			if step.ErrorPolicy() == types.OnErrorContinue {
				env.logger.Warn("iteration failed, continuing",
					"step", step.ID, "iteration", i, "error", err)
				e.appendEvent(env, session.Event{
					Kind: session.EventStepFailed, Step: step.ID,
					Message: err.Error(),
					Details: map[string]any{"iteration": i},
				})
				results = append(results, nil)
				continue
			}
			return nil, recerr.IterationFailed(step.ID, i, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// runParallel executes all iterations concurrently with isolated
// context forks. The iteration budget is reserved up front; the first
// failure cancels the rest, and results keep input order.
func (e *Executor) runParallel(ctx context.Context, env *runEnv, step *types.Step, items []any) ([]any, error) {
	if err := env.rs.ReserveSteps(len(items)); err != nil {
		return nil, err
	}

	loopVar := step.LoopVar()
	results := make([]any, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i := i
		fork := env.ec.Fork(map[string]any{loopVar: item})
		g.Go(func() error {
			result, err := e.runUnit(gctx, env, step, fork)
			if err != nil {
				if recerr.IsConfiguration(err) {
					return err
				}
				return recerr.IterationFailed(step.ID, i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
