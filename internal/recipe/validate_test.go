package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

func parseRecipe(t *testing.T, yaml string) *types.Recipe {
	t.Helper()
	rec, err := types.Parse([]byte(yaml))
	require.NoError(t, err)
	return rec
}

func TestValidateCleanRecipe(t *testing.T) {
	rec := parseRecipe(t, `
name: clean
description: no findings
version: 1.0.0
context:
  target: prod
steps:
  - id: first
    agent: a
    prompt: "deploy to {{target}}"
    output: result
  - id: second
    agent: a
    prompt: "verify {{result}}"
`)

	res := Validate(rec, t.TempDir())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidateWarnsOnUnknownReference(t *testing.T) {
	rec := parseRecipe(t, `
name: dangling
description: references nothing defines
version: 1.0.0
steps:
  - id: only
    agent: a
    prompt: "use {{never_set}}"
`)

	res := Validate(rec, t.TempDir())
	assert.True(t, res.Valid, "unknown references warn, not fail")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "never_set")
}

func TestValidateOrderMatters(t *testing.T) {
	rec := parseRecipe(t, `
name: backwards
description: uses an output before it exists
version: 1.0.0
steps:
  - id: early
    agent: a
    prompt: "need {{later_out}}"
  - id: late
    agent: a
    prompt: "produce"
    output: later_out
`)

	res := Validate(rec, t.TempDir())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "later_out")
}

func TestValidateLoopVariableScoped(t *testing.T) {
	rec := parseRecipe(t, `
name: scoped
description: loop variable visible only inside its step
version: 1.0.0
context:
  items: [1]
steps:
  - id: each
    agent: a
    prompt: "handle {{task}}"
    foreach: "{{items}}"
    as: task
  - id: after
    agent: a
    prompt: "leak {{task}}"
`)

	res := Validate(rec, t.TempDir())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "after")
}

func TestValidateMetadataAlwaysKnown(t *testing.T) {
	rec := parseRecipe(t, `
name: meta
description: engine metadata needs no declaration
version: 1.0.0
steps:
  - id: only
    agent: a
    prompt: "{{recipe.name}} in {{session.id}}"
`)

	res := Validate(rec, t.TempDir())
	assert.Empty(t, res.Warnings)
}

func TestValidateMissingSubRecipeIsError(t *testing.T) {
	rec := parseRecipe(t, `
name: caller
description: sub-recipe file missing
version: 1.0.0
steps:
  - id: call
    type: recipe
    recipe: missing.yaml
`)

	res := Validate(rec, t.TempDir())
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "missing.yaml")
}

func TestValidateTemplatedSubRecipeSkipped(t *testing.T) {
	rec := parseRecipe(t, `
name: caller
description: dynamic path resolved at run time
version: 1.0.0
context:
  which: child
steps:
  - id: call
    type: recipe
    recipe: "{{which}}.yaml"
`)

	res := Validate(rec, t.TempDir())
	assert.True(t, res.Valid)
}

func TestValidateExistingSubRecipe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "child.yaml"), []byte("name: c"), 0644))

	rec := parseRecipe(t, `
name: caller
description: sub-recipe present
version: 1.0.0
steps:
  - id: call
    type: recipe
    recipe: child.yaml
`)

	res := Validate(rec, dir)
	assert.Empty(t, res.Errors)
}

func TestLoaderResolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(`
name: review
description: d
version: 1.0.0
steps:
  - id: s
    agent: a
    prompt: p
`), 0644))

	l := NewLoader(dir)

	path, err := l.Resolve("review")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "review.yaml"), path)

	_, err = l.Resolve("nonexistent")
	assert.Error(t, err)

	rec, loaded, err := l.Load("review")
	require.NoError(t, err)
	assert.Equal(t, "review", rec.Name)
	assert.Equal(t, path, loaded)
}

func TestLoaderList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	l := NewLoader(dir)
	names, err := l.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}
