// Package executor runs recipes: step interpretation, stage
// orchestration with approval gates, loop execution, nested recipes,
// and checkpointing through the session store.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/execctx"
	"github.com/robotdad/amplifier-collection-recipes/internal/runner"
	"github.com/robotdad/amplifier-collection-recipes/internal/session"
	"github.com/robotdad/amplifier-collection-recipes/internal/template"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// Executor drives recipe execution against a unit runner and a session
// store.
type Executor struct {
	runner   *runner.Retrier
	sessions *session.Manager
	logger   *slog.Logger
}

// New creates an Executor. The runner is wrapped with retry handling.
func New(r runner.Runner, sessions *session.Manager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner:   runner.NewRetrier(r, logger),
		sessions: sessions,
		logger:   logger,
	}
}

// RunOptions configures a new run.
type RunOptions struct {
	// RecipePath is where the recipe was loaded from; sub-recipe paths
	// resolve relative to its directory.
	RecipePath string

	// ProjectPath scopes the session store.
	ProjectPath string

	// Context holds initial variables supplied by the caller. They
	// overlay the recipe's own context defaults.
	Context map[string]any
}

// runEnv carries per-recipe execution state down the call tree. The
// session state is always the root session; persist is false inside
// sub-recipes, whose steps are not checkpointed individually.
type runEnv struct {
	rec     *types.Recipe
	dir     string
	ec      *execctx.Context
	rs      *RecursionState
	st      *session.State
	persist bool
	logger  *slog.Logger
}

// Run executes a recipe from the beginning. When execution pauses at an
// approval gate the returned state has status paused and a pending
// approval block; that is not an error.
func (e *Executor) Run(ctx context.Context, rec *types.Recipe, opts RunOptions) (*session.State, error) {
	st, err := e.sessions.Create(rec.Name, rec.Version, opts.RecipePath, opts.ProjectPath)
	if err != nil {
		return nil, err
	}

	ec := execctx.New(rec.Context, opts.Context)
	setRunMeta(ec, rec, st)

	env := &runEnv{
		rec:     rec,
		dir:     filepath.Dir(opts.RecipePath),
		ec:      ec,
		rs:      NewRecursionState(rec.RecursionLimits(), rec.Name),
		st:      st,
		persist: true,
		logger:  e.logger.With("session_id", st.SessionID, "recipe", rec.Name),
	}

	e.appendEvent(env, session.Event{Kind: session.EventRunStarted})
	return e.finishRun(ctx, env)
}

// Resume continues a paused or interrupted session. Completed stages
// and steps are skipped; a pending approval whose timeout has passed
// gets its default disposition applied first.
func (e *Executor) Resume(ctx context.Context, sessionID string) (*session.State, error) {
	st, err := e.sessions.Find(sessionID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case session.StatusCompleted:
		return st, nil
	case session.StatusFailed:
		return st, recerr.InvalidField("session_id", "session already failed").
			WithDetail("session_id", sessionID).
			WithDetail("error", st.Error)
	}

	if st.Pending != nil {
		disposition, err := e.sessions.ApplyApprovalTimeout(st, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		switch disposition {
		case session.ApprovalTimeout:
			e.logger.Warn("approval timed out, denied by default",
				"session_id", sessionID, "stage", lastApprovalStage(st))
			return st, recerr.ApprovalDenied(lastApprovalStage(st), "timed out")
		case "":
			if st.Pending != nil {
				// Still waiting for a decision.
				return st, nil
			}
		}
	}

	rec, err := types.ParseFile(st.RecipePath)
	if err != nil {
		return nil, err
	}
	if errs := rec.Validate(); len(errs) > 0 {
		return nil, recerr.InvalidField("recipe", errs[0])
	}

	ec := execctx.FromSnapshot(st.Context)
	setRunMeta(ec, rec, st)
	st.Status = session.StatusRunning

	env := &runEnv{
		rec:     rec,
		dir:     filepath.Dir(st.RecipePath),
		ec:      ec,
		rs:      NewRecursionState(rec.RecursionLimits(), rec.Name),
		st:      st,
		persist: true,
		logger:  e.logger.With("session_id", st.SessionID, "recipe", rec.Name),
	}

	e.appendEvent(env, session.Event{Kind: session.EventRunResumed})
	return e.finishRun(ctx, env)
}

// finishRun executes the recipe body and translates the outcome into
// final session status.
func (e *Executor) finishRun(ctx context.Context, env *runEnv) (*session.State, error) {
	err := e.runRecipe(ctx, env)

	var paused *errPaused
	if errors.As(err, &paused) {
		// State was already persisted by the approval request.
		e.appendEvent(env, session.Event{Kind: session.EventApprovalPending, Stage: paused.Stage})
		return env.st, nil
	}

	if err != nil {
		env.st.Status = session.StatusFailed
		env.st.Error = err.Error()
		env.st.Context = env.ec.Snapshot()
		if saveErr := e.sessions.Save(env.st); saveErr != nil {
			env.logger.Error("saving failed session state", "error", saveErr)
		}
		e.appendEvent(env, session.Event{Kind: session.EventRunFailed, Message: err.Error()})
		return env.st, err
	}

	env.st.Status = session.StatusCompleted
	env.st.Context = env.ec.Snapshot()
	if err := e.sessions.Save(env.st); err != nil {
		return env.st, err
	}
	e.appendEvent(env, session.Event{Kind: session.EventRunCompleted})
	return env.st, nil
}

// runRecipe dispatches between flat and staged recipes.
func (e *Executor) runRecipe(ctx context.Context, env *runEnv) error {
	if env.rec.IsStaged() {
		return e.runStages(ctx, env)
	}

	start := 0
	if env.persist {
		start = env.st.StepIndex
	}
	return e.runSteps(ctx, env, env.rec.Steps, start, "")
}

func (e *Executor) runStages(ctx context.Context, env *runEnv) error {
	start := 0
	if env.persist && env.st.StageIndex > 0 {
		start = env.st.StageIndex
	}
	if env.persist && env.st.StageIndex < 0 {
		env.st.StageIndex = 0
	}

	for si := start; si < len(env.rec.Stages); si++ {
		stage := env.rec.Stages[si]
		if env.persist && env.st.StageCompleted(stage.Name) {
			continue
		}

		e.appendEvent(env, session.Event{Kind: session.EventStageStarted, Stage: stage.Name})
		logger := env.logger.With("stage", stage.Name)
		logger.Info("stage started", "steps", len(stage.Steps))

		stepStart := 0
		if env.persist && si == env.st.StageIndex {
			stepStart = env.st.StepIndex
		}
		if err := e.runSteps(ctx, env, stage.Steps, stepStart, stage.Name); err != nil {
			return err
		}

		// The gate is evaluated once the stage's work is done, with
		// its outputs already checkpointed; the stage is not marked
		// completed until the gate clears.
		if err := e.checkApproval(env, stage); err != nil {
			return err
		}

		if env.persist {
			env.st.MarkStage(stage.Name)
			if err := e.checkpoint(env); err != nil {
				return err
			}
		}
		e.appendEvent(env, session.Event{Kind: session.EventStageCompleted, Stage: stage.Name})
		logger.Info("stage completed")
	}
	return nil
}

// checkApproval gates advancing past a completed stage. Pausing never
// blocks: the pending gate is persisted and an errPaused unwinds to
// the run entry point.
func (e *Executor) checkApproval(env *runEnv, stage *types.Stage) error {
	if stage.Approval == nil || !stage.Approval.Required {
		return nil
	}

	switch env.st.ApprovalStatus(stage.Name) {
	case session.ApprovalApproved:
		return nil
	case session.ApprovalDenied, session.ApprovalTimeout:
		return recerr.ApprovalDenied(stage.Name, "stage was denied")
	case session.ApprovalPending:
		return &errPaused{Stage: stage.Name}
	}

	// A broken prompt template is a configuration error, same as a
	// step condition.
	prompt, err := env.resolver().Resolve(stage.Approval.Prompt)
	if err != nil {
		return err
	}

	timeout := time.Duration(stage.Approval.Timeout) * time.Second
	if env.persist {
		env.st.Context = env.ec.Snapshot()
	}
	if err := e.sessions.RequestApproval(env.st, stage.Name, prompt, timeout,
		string(stage.Approval.Disposition())); err != nil {
		return err
	}
	env.logger.Info("approval requested", "stage", stage.Name, "timeout", timeout.String())
	return &errPaused{Stage: stage.Name}
}

// runSteps executes steps sequentially from start. A skip_remaining
// policy marks every later step skipped and ends the list successfully.
func (e *Executor) runSteps(ctx context.Context, env *runEnv, steps []*types.Step, start int, stageName string) error {
	for i := start; i < len(steps); i++ {
		step := steps[i]
		if env.persist && env.st.StepCompleted(step.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		skipped, err := e.runStep(ctx, env, step)
		if err != nil {
			var skip *errSkipRemaining
			if errors.As(err, &skip) {
				for j := i; j < len(steps); j++ {
					e.appendEvent(env, session.Event{Kind: session.EventStepSkipped, Step: steps[j].ID, Stage: stageName})
					if env.persist {
						env.st.MarkStep(steps[j].ID, true)
					}
				}
				if env.persist {
					return e.checkpoint(env)
				}
				return nil
			}
			e.appendEvent(env, session.Event{Kind: session.EventStepFailed, Step: step.ID, Stage: stageName, Message: err.Error()})
			return err
		}

		kind := session.EventStepCompleted
		if skipped {
			kind = session.EventStepSkipped
		}
		e.appendEvent(env, session.Event{Kind: kind, Step: step.ID, Stage: stageName})

		if env.persist {
			env.st.MarkStep(step.ID, skipped)
			if err := e.checkpoint(env); err != nil {
				return err
			}
		}
	}
	return nil
}

// runStep interprets one step: condition, foreach or single execution,
// output binding, and the on_error policy. Configuration errors always
// fail the run regardless of on_error. Returns whether the step was
// skipped by its condition.
func (e *Executor) runStep(ctx context.Context, env *runEnv, step *types.Step) (bool, error) {
	logger := env.logger.With("step", step.ID)
	e.appendEvent(env, session.Event{Kind: session.EventStepStarted, Step: step.ID})

	if step.Condition != "" {
		ok, err := env.resolver().EvalCondition(step.Condition)
		if err != nil {
			// Condition errors are configuration errors and keep
			// their code so on_error never applies.
			return false, err
		}
		if !ok {
			logger.Info("step skipped", "condition", step.Condition)
			return true, nil
		}
	}

	var (
		result any
		err    error
	)
	if step.Foreach != "" {
		var skipped bool
		result, skipped, err = e.runForeach(ctx, env, step)
		if skipped && err == nil {
			return true, nil
		}
	} else {
		if cerr := env.rs.CountStep(); cerr != nil {
			return false, cerr
		}
		result, err = e.runUnit(ctx, env, step, env.ec)
	}

	if err != nil {
		if recerr.IsConfiguration(err) {
			return false, err
		}
		switch step.ErrorPolicy() {
		case types.OnErrorContinue:
			logger.Warn("step failed, continuing", "error", err)
			return false, nil
		case types.OnErrorSkipRemaining:
			logger.Warn("step failed, skipping remaining steps", "error", err)
			return false, &errSkipRemaining{StepID: step.ID, Cause: err}
		}
		return false, recerr.StepFailed(step.ID, err)
	}

	if step.Output != "" {
		if err := env.ec.Set(step.Output, result); err != nil {
			return false, err
		}
	}
	logger.Info("step completed")
	return false, nil
}

// runUnit executes the step's unit of work once (per iteration for
// loops) against the given context layer stack. Both unit kinds are
// bounded by the step timeout; for sub-recipes the deadline propagates
// into every nested invocation through the context.
func (e *Executor) runUnit(ctx context.Context, env *runEnv, step *types.Step, ec *execctx.Context) (any, error) {
	switch step.Kind {
	case types.StepKindRecipe:
		timeout := time.Duration(step.TimeoutSeconds()) * time.Second
		subCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := e.runSubRecipe(subCtx, env, step, ec)
		if err != nil {
			var paused *errPaused
			if subCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.As(err, &paused) {
				return nil, recerr.UnitTimeout(step.Recipe, step.TimeoutSeconds())
			}
		}
		return result, err
	default:
		return e.invokeAgent(ctx, env, step, ec)
	}
}

func (e *Executor) invokeAgent(ctx context.Context, env *runEnv, step *types.Step, ec *execctx.Context) (any, error) {
	resolver := env.resolverFor(ec)

	prompt, err := resolver.Resolve(step.Prompt)
	if err != nil {
		return nil, err
	}
	cfg, err := resolver.EvalMap(step.AgentConfig)
	if err != nil {
		return nil, err
	}

	req := &runner.Request{
		Agent:   step.Agent,
		Prompt:  prompt,
		Mode:    step.Mode,
		Config:  cfg,
		Timeout: time.Duration(step.TimeoutSeconds()) * time.Second,
	}
	return e.runner.Invoke(ctx, req, step.Retry)
}

func (e *Executor) checkpoint(env *runEnv) error {
	env.st.Context = env.ec.Snapshot()
	return e.sessions.Save(env.st)
}

func (e *Executor) appendEvent(env *runEnv, ev session.Event) {
	if !env.persist && ev.Kind != session.EventApprovalPending {
		return
	}
	if err := e.sessions.AppendEvent(env.st, ev); err != nil {
		env.logger.Debug("appending session event", "error", err)
	}
}

func setRunMeta(ec *execctx.Context, rec *types.Recipe, st *session.State) {
	ec.SetMeta("recipe", map[string]any{
		"name":    rec.Name,
		"version": rec.Version,
	})
	ec.SetMeta("session", map[string]any{
		"id":           st.SessionID,
		"project_path": st.ProjectPath,
	})
}

func lastApprovalStage(st *session.State) string {
	if n := len(st.ApprovalHistory); n > 0 {
		return st.ApprovalHistory[n-1].Stage
	}
	return ""
}

func (env *runEnv) resolver() *template.Resolver {
	return template.NewResolver(env.ec)
}

func (env *runEnv) resolverFor(ec *execctx.Context) *template.Resolver {
	return template.NewResolver(ec)
}
