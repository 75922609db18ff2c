// Package types defines the recipe data model.
package types

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

// RecursionConfig bounds recipe composition.
type RecursionConfig struct {
	MaxDepth      int `yaml:"max_depth"`       // Default 5, configurable 1-20
	MaxTotalSteps int `yaml:"max_total_steps"` // Default 100, configurable 1-1000
}

// DefaultRecursion returns the default composition limits.
func DefaultRecursion() RecursionConfig {
	return RecursionConfig{MaxDepth: 5, MaxTotalSteps: 100}
}

// Validate checks the recursion config bounds. Zero fields are unset
// and take their defaults.
func (r *RecursionConfig) Validate() []string {
	var errs []string
	if r.MaxDepth != 0 && (r.MaxDepth < 1 || r.MaxDepth > 20) {
		errs = append(errs, fmt.Sprintf("recursion.max_depth must be 1-20, got %d", r.MaxDepth))
	}
	if r.MaxTotalSteps != 0 && (r.MaxTotalSteps < 1 || r.MaxTotalSteps > 1000) {
		errs = append(errs, fmt.Sprintf("recursion.max_total_steps must be 1-1000, got %d", r.MaxTotalSteps))
	}
	return errs
}

// withDefaults fills unset fields from the defaults.
func (r *RecursionConfig) withDefaults() RecursionConfig {
	out := DefaultRecursion()
	if r == nil {
		return out
	}
	if r.MaxDepth > 0 {
		out.MaxDepth = r.MaxDepth
	}
	if r.MaxTotalSteps > 0 {
		out.MaxTotalSteps = r.MaxTotalSteps
	}
	return out
}

// ApprovalDisposition is what happens when a gate times out.
type ApprovalDisposition string

const (
	ApprovalDispositionDeny    ApprovalDisposition = "deny"
	ApprovalDispositionApprove ApprovalDisposition = "approve"
)

// ApprovalConfig is the approval gate configuration for a stage.
type ApprovalConfig struct {
	Required bool   `yaml:"required"`
	Prompt   string `yaml:"prompt"`
	// Timeout in seconds to wait for a decision. 0 waits forever.
	Timeout int                 `yaml:"timeout"`
	Default ApprovalDisposition `yaml:"default"` // Applied on timeout; default deny
}

// Disposition returns the timeout disposition, applying the default.
func (a *ApprovalConfig) Disposition() ApprovalDisposition {
	if a.Default == "" {
		return ApprovalDispositionDeny
	}
	return a.Default
}

// Validate checks the approval configuration.
func (a *ApprovalConfig) Validate() []string {
	var errs []string
	if a.Timeout < 0 {
		errs = append(errs, "approval.timeout must be non-negative")
	}
	if a.Default != "" && a.Default != ApprovalDispositionDeny && a.Default != ApprovalDispositionApprove {
		errs = append(errs, fmt.Sprintf("approval.default must be 'deny' or 'approve', got %q", a.Default))
	}
	if a.Required && a.Prompt == "" {
		errs = append(errs, "approval.prompt is required when approval.required is true")
	}
	return errs
}

// Stage is a named group of steps with an optional approval gate.
// Stages exist only in staged mode.
type Stage struct {
	Name     string          `yaml:"name"`
	Steps    []*Step         `yaml:"steps"`
	Approval *ApprovalConfig `yaml:"approval,omitempty"`
}

// Validate checks stage structure and constraints.
func (s *Stage) Validate() []string {
	var errs []string

	if s.Name == "" {
		errs = append(errs, "stage missing required field: name")
	} else if !isName(s.Name, true) {
		errs = append(errs, fmt.Sprintf("stage name must be alphanumeric with hyphens/underscores/spaces, got %q", s.Name))
	}

	if len(s.Steps) == 0 {
		errs = append(errs, fmt.Sprintf("stage %q: must have at least one step", s.Name))
	}

	for _, step := range s.Steps {
		for _, err := range step.Validate() {
			errs = append(errs, fmt.Sprintf("stage %q: %s", s.Name, err))
		}
	}

	if dups := duplicates(stepIDs(s.Steps)); len(dups) > 0 {
		errs = append(errs, fmt.Sprintf("stage %q: duplicate step IDs: %s", s.Name, strings.Join(dups, ", ")))
	}

	if s.Approval != nil {
		for _, err := range s.Approval.Validate() {
			errs = append(errs, fmt.Sprintf("stage %q: %s", s.Name, err))
		}
	}

	return errs
}

// Recipe is an immutable, parsed workflow definition.
//
// A recipe uses exactly one of two shapes: flat mode (Steps) or staged
// mode (Stages with approval gates). The parser rejects recipes that
// populate both.
type Recipe struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`

	Steps  []*Step  `yaml:"steps,omitempty"`  // Flat mode
	Stages []*Stage `yaml:"stages,omitempty"` // Staged mode

	Author  string   `yaml:"author,omitempty"`
	Created string   `yaml:"created,omitempty"`
	Updated string   `yaml:"updated,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`

	// Context is the recipe-declared initial context.
	Context map[string]any `yaml:"context,omitempty"`

	// Recursion is the recipe-level composition limit.
	Recursion *RecursionConfig `yaml:"recursion,omitempty"`
}

// IsStaged returns true if the recipe uses staged mode.
func (r *Recipe) IsStaged() bool {
	return len(r.Stages) > 0
}

// AllSteps returns all steps from either flat or staged mode.
func (r *Recipe) AllSteps() []*Step {
	if !r.IsStaged() {
		return r.Steps
	}
	var all []*Step
	for _, stage := range r.Stages {
		all = append(all, stage.Steps...)
	}
	return all
}

// GetStep returns the step with the given ID, or nil.
func (r *Recipe) GetStep(id string) *Step {
	for _, step := range r.AllSteps() {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// GetStage returns the stage with the given name, or nil.
func (r *Recipe) GetStage(name string) *Stage {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage
		}
	}
	return nil
}

// RecursionLimits returns the effective composition limits, filling
// unset fields with the defaults.
func (r *Recipe) RecursionLimits() RecursionConfig {
	return r.Recursion.withDefaults()
}

// Parse parses a recipe from YAML bytes.
func Parse(data []byte) (*Recipe, error) {
	var rec Recipe
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing recipe YAML: %w", err)
	}

	if len(rec.Steps) > 0 && len(rec.Stages) > 0 {
		return nil, recerr.New(recerr.CodeExclusiveFields, "recipe cannot have both 'stages' and 'steps' - use one or the other")
	}

	// Default unspecified step kinds to agent
	for _, step := range rec.AllSteps() {
		if step.Kind == "" {
			step.Kind = StepKindAgent
		}
	}

	return &rec, nil
}

// ParseFile loads a recipe from a YAML file.
func ParseFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("recipe file not found: %s", path)
		}
		return nil, fmt.Errorf("reading recipe file: %w", err)
	}
	return Parse(data)
}

// Validate checks recipe structure and constraints.
// It returns all problems found rather than stopping at the first.
func (r *Recipe) Validate() []string {
	var errs []string

	if r.Name == "" {
		errs = append(errs, "recipe missing required field: name")
	} else if !isName(r.Name, false) {
		errs = append(errs, "recipe name must be alphanumeric with hyphens/underscores")
	}
	if r.Description == "" {
		errs = append(errs, "recipe missing required field: description")
	}
	if r.Version == "" {
		errs = append(errs, "recipe missing required field: version")
	} else {
		errs = append(errs, validateVersion(r.Version)...)
	}

	if len(r.Steps) == 0 && len(r.Stages) == 0 {
		errs = append(errs, "recipe must have at least one step or stage")
	}

	if r.IsStaged() {
		errs = append(errs, r.validateStaged()...)
	} else {
		errs = append(errs, r.validateFlat()...)
	}

	if r.Recursion != nil {
		errs = append(errs, r.Recursion.Validate()...)
	}

	return errs
}

// validateVersion enforces simple semver: MAJOR.MINOR.PATCH, numeric,
// no v prefix, no pre-release or build metadata.
func validateVersion(version string) []string {
	if strings.HasPrefix(version, "v") {
		return []string{"recipe version must follow semver format without 'v' prefix (use '1.0.0' not 'v1.0.0')"}
	}
	if strings.ContainsAny(version, "-+") {
		return []string{"recipe version must follow simple semver format (MAJOR.MINOR.PATCH only, no pre-release tags)"}
	}
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return []string{"recipe version must follow semver format (MAJOR.MINOR.PATCH)"}
	}
	for _, part := range parts {
		if part == "" || strings.Trim(part, "0123456789") != "" {
			return []string{"recipe version parts must be numeric (e.g., '1.0.0' not '1.a.0')"}
		}
	}
	return nil
}

func (r *Recipe) validateFlat() []string {
	var errs []string

	for _, step := range r.Steps {
		errs = append(errs, step.Validate()...)
	}

	ids := stepIDs(r.Steps)
	if dups := duplicates(ids); len(dups) > 0 {
		errs = append(errs, fmt.Sprintf("duplicate step IDs: %s", strings.Join(dups, ", ")))
	}

	errs = append(errs, checkDependencies(r.Steps, toSet(ids), "step")...)

	return errs
}

// checkDependencies enforces that depends_on references resolve to
// steps declared earlier in execution order. Forward references would
// allow cycles, so declaration order doubles as the acyclicity proof.
func checkDependencies(steps []*Step, idSet map[string]bool, label string) []string {
	var errs []string
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			switch {
			case !idSet[dep]:
				errs = append(errs, fmt.Sprintf("%s %q: depends_on references unknown step %q", label, step.ID, dep))
			case !seen[dep]:
				errs = append(errs, fmt.Sprintf("%s %q: depends_on %q creates a cycle; dependencies must reference earlier steps", label, step.ID, dep))
			}
		}
		seen[step.ID] = true
	}
	return errs
}

func (r *Recipe) validateStaged() []string {
	var errs []string

	var stageNames []string
	for _, stage := range r.Stages {
		stageNames = append(stageNames, stage.Name)
	}
	if dups := duplicates(stageNames); len(dups) > 0 {
		errs = append(errs, fmt.Sprintf("duplicate stage names: %s", strings.Join(dups, ", ")))
	}

	for _, stage := range r.Stages {
		errs = append(errs, stage.Validate()...)
	}

	// Step IDs must be unique recipe-wide, across all stages
	ids := stepIDs(r.AllSteps())
	if dups := duplicates(ids); len(dups) > 0 {
		errs = append(errs, fmt.Sprintf("duplicate step IDs across stages: %s", strings.Join(dups, ", ")))
	}

	errs = append(errs, checkDependencies(r.AllSteps(), toSet(ids), "step")...)

	return errs
}

// isName reports whether s is alphanumeric with hyphens/underscores
// (and optionally spaces, for stage names).
func isName(s string, allowSpaces bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		case r == ' ' && allowSpaces:
		default:
			return false
		}
	}
	return true
}

func stepIDs(steps []*Step) []string {
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	return ids
}

func duplicates(items []string) []string {
	seen := make(map[string]int)
	for _, item := range items {
		seen[item]++
	}
	var dups []string
	for _, item := range items {
		if seen[item] > 1 {
			dups = append(dups, item)
			seen[item] = 0 // Report each duplicate once
		}
	}
	return dups
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
