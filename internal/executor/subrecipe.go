package executor

import (
	"context"
	"path/filepath"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/execctx"
	"github.com/robotdad/amplifier-collection-recipes/internal/template"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// runSubRecipe executes a nested recipe. The child gets an isolated
// context seeded only with its own defaults and the step's explicit
// context block; parent variables never leak in implicitly. The step's
// result is the child's final variable snapshot.
//
// Sub-recipe steps are not individually checkpointed: resuming the
// parent re-runs the sub-recipe step from its beginning. Approval
// decisions are shared with the root session so a gate approved before
// an interruption stays approved on the re-run.
func (e *Executor) runSubRecipe(ctx context.Context, env *runEnv, step *types.Step, ec *execctx.Context) (any, error) {
	resolver := template.NewResolver(ec)

	path, err := resolver.Resolve(step.Recipe)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.dir, path)
	}

	child, err := types.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if errs := child.Validate(); len(errs) > 0 {
		return nil, recerr.InvalidField("recipe", errs[0]).
			WithDetail("path", path).
			WithDetail("step_id", step.ID)
	}

	childRS, err := env.rs.EnterRecipe(child.Name, step.Recursion)
	if err != nil {
		return nil, err
	}

	passed, err := resolver.EvalMap(step.Context)
	if err != nil {
		return nil, err
	}

	childEC := execctx.New(child.Context, passed)
	setRunMeta(childEC, child, env.st)

	childEnv := &runEnv{
		rec:     child,
		dir:     filepath.Dir(path),
		ec:      childEC,
		rs:      childRS,
		st:      env.st,
		persist: false,
		logger:  env.logger.With("recipe", child.Name, "depth", childRS.Depth()),
	}

	childEnv.logger.Info("sub-recipe started", "path", path)
	if err := e.runRecipe(ctx, childEnv); err != nil {
		return nil, err
	}
	childEnv.logger.Info("sub-recipe completed")

	return withoutMeta(childEC.Snapshot()), nil
}

// withoutMeta strips the reserved metadata names from a snapshot so a
// sub-recipe's result carries only its own variables.
func withoutMeta(snapshot map[string]any) map[string]any {
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		if types.IsReservedName(k) {
			continue
		}
		out[k] = v
	}
	return out
}
