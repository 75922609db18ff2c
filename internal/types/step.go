package types

import (
	"fmt"
	"strings"
)

// StepKind determines what a step invokes.
type StepKind string

const (
	// StepKindAgent delegates a prompt to an agent.
	StepKindAgent StepKind = "agent"

	// StepKindRecipe runs a sub-recipe with an isolated context.
	StepKindRecipe StepKind = "recipe"
)

// Valid returns true if this is a recognized step kind.
func (k StepKind) Valid() bool {
	return k == StepKindAgent || k == StepKindRecipe
}

// OnError determines how a step failure affects the rest of the execution.
type OnError string

const (
	// OnErrorFail aborts the whole execution (default).
	OnErrorFail OnError = "fail"

	// OnErrorContinue records the error and proceeds to the next step.
	// The step's output variables stay unset.
	OnErrorContinue OnError = "continue"

	// OnErrorSkipRemaining stops processing further steps and stages
	// without treating the overall execution as failed.
	OnErrorSkipRemaining OnError = "skip_remaining"
)

// Valid returns true if this is a recognized error policy.
func (o OnError) Valid() bool {
	switch o {
	case OnErrorFail, OnErrorContinue, OnErrorSkipRemaining:
		return true
	}
	return false
}

// Backoff kinds for retry policies.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
)

// RetryConfig is the retry policy for transient failures.
// Only failures classified as transient by the unit runner (timeout,
// rate limit, connectivity) are retried.
type RetryConfig struct {
	MaxAttempts  int    `yaml:"max_attempts"`
	Backoff      string `yaml:"backoff"`       // exponential (default) | linear
	InitialDelay int    `yaml:"initial_delay"` // Seconds, default 5
	MaxDelay     int    `yaml:"max_delay"`     // Seconds, default 300
}

// DefaultRetry is the policy applied when a step has no retry block:
// a single attempt, no backoff.
func DefaultRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  1,
		Backoff:      BackoffExponential,
		InitialDelay: 5,
		MaxDelay:     300,
	}
}

// Normalized returns a copy with defaults filled in.
func (r *RetryConfig) Normalized() *RetryConfig {
	out := DefaultRetry()
	if r == nil {
		return out
	}
	if r.MaxAttempts > 0 {
		out.MaxAttempts = r.MaxAttempts
	}
	if r.Backoff != "" {
		out.Backoff = r.Backoff
	}
	if r.InitialDelay > 0 {
		out.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		out.MaxDelay = r.MaxDelay
	}
	return out
}

// reservedOutputNames are namespaces owned by the engine. Step outputs
// cannot shadow them.
var reservedOutputNames = map[string]bool{
	"recipe":  true,
	"session": true,
	"step":    true,
	"stage":   true,
}

// IsReservedName reports whether name is a reserved context namespace.
func IsReservedName(name string) bool {
	return reservedOutputNames[name]
}

// Step is one unit of declared work plus its control-flow modifiers.
// Exactly one of the agent fields or the recipe fields is populated,
// depending on Kind; the modifiers (condition, foreach, retry, on_error)
// attach to either kind.
type Step struct {
	ID   string   `yaml:"id"`
	Kind StepKind `yaml:"type"`

	// Agent step fields (Kind == agent)
	Agent       string         `yaml:"agent,omitempty"`
	Prompt      string         `yaml:"prompt,omitempty"`
	Mode        string         `yaml:"mode,omitempty"`
	AgentConfig map[string]any `yaml:"agent_config,omitempty"`

	// Recipe step fields (Kind == recipe)
	Recipe  string         `yaml:"recipe,omitempty"`
	Context map[string]any `yaml:"context,omitempty"` // Explicit context passed to the sub-recipe

	// Common optional fields
	Output        string           `yaml:"output,omitempty"`
	Condition     string           `yaml:"condition,omitempty"`
	Foreach       string           `yaml:"foreach,omitempty"`
	As            string           `yaml:"as,omitempty"` // Loop variable name, default "item"
	Collect       string           `yaml:"collect,omitempty"`
	Parallel      bool             `yaml:"parallel,omitempty"`
	MaxIterations int              `yaml:"max_iterations,omitempty"`
	Timeout       int              `yaml:"timeout,omitempty"` // Seconds, default 600
	Retry         *RetryConfig     `yaml:"retry,omitempty"`
	OnError       OnError          `yaml:"on_error,omitempty"`
	DependsOn     []string         `yaml:"depends_on,omitempty"`
	Recursion     *RecursionConfig `yaml:"recursion,omitempty"` // Per-step override for recipe steps
}

// LoopVar returns the loop variable name for a foreach step.
func (s *Step) LoopVar() string {
	if s.As != "" {
		return s.As
	}
	return "item"
}

// TimeoutSeconds returns the step timeout, applying the default.
func (s *Step) TimeoutSeconds() int {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 600
}

// MaxIter returns the foreach iteration cap, applying the default.
func (s *Step) MaxIter() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return 100
}

// ErrorPolicy returns the on_error policy, applying the default.
func (s *Step) ErrorPolicy() OnError {
	if s.OnError == "" {
		return OnErrorFail
	}
	return s.OnError
}

// Validate checks the step structure and constraints.
// It returns all problems found rather than stopping at the first.
func (s *Step) Validate() []string {
	var errs []string

	if s.ID == "" {
		errs = append(errs, "step missing required field: id")
	}

	kind := s.Kind
	if kind == "" {
		kind = StepKindAgent
	}

	switch kind {
	case StepKindAgent:
		if s.Agent == "" {
			errs = append(errs, fmt.Sprintf("step %q: agent steps require 'agent' field", s.ID))
		}
		if s.Prompt == "" {
			errs = append(errs, fmt.Sprintf("step %q: agent steps require 'prompt' field", s.ID))
		}
		if s.Recipe != "" {
			errs = append(errs, fmt.Sprintf("step %q: agent steps cannot have 'recipe' field", s.ID))
		}
		if len(s.Context) > 0 {
			errs = append(errs, fmt.Sprintf("step %q: agent steps cannot have 'context' field", s.ID))
		}
	case StepKindRecipe:
		if s.Recipe == "" {
			errs = append(errs, fmt.Sprintf("step %q: recipe steps require 'recipe' field", s.ID))
		}
		if s.Agent != "" {
			errs = append(errs, fmt.Sprintf("step %q: recipe steps cannot have 'agent' field", s.ID))
		}
		if s.Prompt != "" {
			errs = append(errs, fmt.Sprintf("step %q: recipe steps cannot have 'prompt' field", s.ID))
		}
		if s.Mode != "" {
			errs = append(errs, fmt.Sprintf("step %q: recipe steps cannot have 'mode' field", s.ID))
		}
		if s.Recursion != nil {
			errs = append(errs, s.Recursion.Validate()...)
		}
	default:
		errs = append(errs, fmt.Sprintf("step %q: type must be 'agent' or 'recipe', got %q", s.ID, s.Kind))
	}

	if s.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("step %q: timeout must be positive", s.ID))
	}

	if s.OnError != "" && !s.OnError.Valid() {
		errs = append(errs, fmt.Sprintf("step %q: on_error must be 'fail', 'continue', or 'skip_remaining'", s.ID))
	}

	if s.Output != "" {
		if !isIdentifier(s.Output) {
			errs = append(errs, fmt.Sprintf("step %q: output name must be alphanumeric with underscores", s.ID))
		}
		if IsReservedName(s.Output) {
			errs = append(errs, fmt.Sprintf("step %q: output name %q is reserved", s.ID, s.Output))
		}
	}

	if s.Retry != nil {
		if s.Retry.MaxAttempts < 0 {
			errs = append(errs, fmt.Sprintf("step %q: retry.max_attempts must be a positive integer", s.ID))
		}
		if s.Retry.Backoff != "" && s.Retry.Backoff != BackoffExponential && s.Retry.Backoff != BackoffLinear {
			errs = append(errs, fmt.Sprintf("step %q: retry.backoff must be 'exponential' or 'linear'", s.ID))
		}
	}

	if s.Foreach != "" {
		if !strings.Contains(s.Foreach, "{{") {
			errs = append(errs, fmt.Sprintf("step %q: foreach must contain a variable reference (e.g., '{{items}}')", s.ID))
		}
		if s.As != "" && !isIdentifier(s.As) {
			errs = append(errs, fmt.Sprintf("step %q: 'as' must be a valid variable name", s.ID))
		}
		if s.Collect != "" {
			if !isIdentifier(s.Collect) {
				errs = append(errs, fmt.Sprintf("step %q: 'collect' must be a valid variable name", s.ID))
			}
			if IsReservedName(s.Collect) {
				errs = append(errs, fmt.Sprintf("step %q: collect name %q is reserved", s.ID, s.Collect))
			}
		}
		if s.MaxIterations < 0 {
			errs = append(errs, fmt.Sprintf("step %q: max_iterations must be positive", s.ID))
		}
	}

	if s.Foreach == "" {
		if s.Parallel {
			errs = append(errs, fmt.Sprintf("step %q: parallel requires foreach", s.ID))
		}
		if s.Collect != "" {
			errs = append(errs, fmt.Sprintf("step %q: collect requires foreach", s.ID))
		}
		if s.As != "" {
			errs = append(errs, fmt.Sprintf("step %q: 'as' requires foreach", s.ID))
		}
	}

	for _, dep := range s.DependsOn {
		if dep == s.ID {
			errs = append(errs, fmt.Sprintf("step %q: cannot depend on itself", s.ID))
		}
	}

	return errs
}

// isIdentifier reports whether s is alphanumeric with underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
