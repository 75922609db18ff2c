package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robotdad/amplifier-collection-recipes/internal/template"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// ValidationResult is the outcome of static recipe analysis.
// Errors block execution; warnings do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate runs the full static analysis: structural checks, variable
// flow through the step sequence, and sub-recipe path existence.
// baseDir is the directory sub-recipe paths resolve against.
func Validate(rec *types.Recipe, baseDir string) *ValidationResult {
	res := &ValidationResult{}

	res.Errors = append(res.Errors, rec.Validate()...)

	known := make(map[string]bool)
	for name := range rec.Context {
		known[name] = true
	}
	// Runtime metadata is always available.
	known["recipe"] = true
	known["session"] = true

	for _, step := range rec.AllSteps() {
		checkStepVariables(step, known, res)
		checkSubRecipePath(step, baseDir, res)

		// Names this step defines become available to later steps.
		if step.Output != "" {
			known[step.Output] = true
		}
		if step.Collect != "" {
			known[step.Collect] = true
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkStepVariables walks every templated field of a step and warns
// about references that no earlier step or context default provides.
// These are warnings, not errors: the caller may supply extra variables
// at run time.
func checkStepVariables(step *types.Step, known map[string]bool, res *ValidationResult) {
	scoped := known
	if step.Foreach != "" {
		// The loop variable is visible inside this step only.
		scoped = make(map[string]bool, len(known)+1)
		for k := range known {
			scoped[k] = true
		}
		scoped[step.LoopVar()] = true
	}

	check := func(field, text string) {
		for _, ref := range template.Vars(text) {
			root := strings.SplitN(ref, ".", 2)[0]
			if !scoped[root] {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"step %q: %s references %q, which no earlier step or context default defines",
					step.ID, field, ref))
			}
		}
	}

	check("prompt", step.Prompt)
	check("condition", step.Condition)
	check("foreach", step.Foreach)
	check("recipe", step.Recipe)
	for key, val := range step.Context {
		if s, ok := val.(string); ok {
			check("context."+key, s)
		}
	}
	for key, val := range step.AgentConfig {
		if s, ok := val.(string); ok {
			check("agent_config."+key, s)
		}
	}
}

// checkSubRecipePath verifies that a literal sub-recipe path exists.
// Templated paths are resolved at run time and skipped here.
func checkSubRecipePath(step *types.Step, baseDir string, res *ValidationResult) {
	if step.Kind != types.StepKindRecipe || step.Recipe == "" {
		return
	}
	if len(template.Vars(step.Recipe)) > 0 {
		return
	}

	path := step.Recipe
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"step %q: sub-recipe file %q does not exist", step.ID, step.Recipe))
	}
}
