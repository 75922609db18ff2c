package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatRecipeYAML = `
name: code-review
description: Review changed files
version: 1.2.0
context:
  severity: high
steps:
  - id: list_files
    agent: explorer
    prompt: "List changed files"
    output: files
  - id: review
    type: agent
    agent: reviewer
    prompt: "Review {{file}}"
    foreach: "{{files}}"
    as: file
    collect: reviews
    depends_on: [list_files]
`

func TestParseFlatRecipe(t *testing.T) {
	rec, err := Parse([]byte(flatRecipeYAML))
	require.NoError(t, err)

	assert.Equal(t, "code-review", rec.Name)
	assert.Equal(t, "1.2.0", rec.Version)
	assert.False(t, rec.IsStaged())
	require.Len(t, rec.Steps, 2)

	// Unspecified type defaults to agent.
	assert.Equal(t, StepKindAgent, rec.Steps[0].Kind)
	assert.Equal(t, "file", rec.Steps[1].As)
	assert.Equal(t, "high", rec.Context["severity"])
	assert.Empty(t, rec.Validate())
}

const stagedRecipeYAML = `
name: deploy
description: Build then deploy behind a gate
version: 0.1.0
stages:
  - name: build
    steps:
      - id: compile
        agent: builder
        prompt: "Compile the project"
  - name: release
    approval:
      required: true
      prompt: "Deploy to production?"
      timeout: 3600
      default: deny
    steps:
      - id: push
        agent: deployer
        prompt: "Push the release"
`

func TestParseStagedRecipe(t *testing.T) {
	rec, err := Parse([]byte(stagedRecipeYAML))
	require.NoError(t, err)

	assert.True(t, rec.IsStaged())
	require.Len(t, rec.Stages, 2)
	require.NotNil(t, rec.Stages[1].Approval)
	assert.True(t, rec.Stages[1].Approval.Required)
	assert.Equal(t, 3600, rec.Stages[1].Approval.Timeout)
	assert.Equal(t, ApprovalDispositionDeny, rec.Stages[1].Approval.Disposition())
	assert.Empty(t, rec.Validate())
	assert.Len(t, rec.AllSteps(), 2)
}

func TestParseRejectsBothShapes(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
version: 1.0.0
steps:
  - id: a
    agent: x
    prompt: p
stages:
  - name: s
    steps:
      - id: b
        agent: x
        prompt: p
`))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"bad version",
			"name: r\ndescription: d\nversion: one\nsteps:\n  - {id: a, agent: x, prompt: p}\n",
			"version",
		},
		{
			"duplicate step ids",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p}\n  - {id: a, agent: x, prompt: p}\n",
			"duplicate",
		},
		{
			"missing agent",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, prompt: p}\n",
			"agent",
		},
		{
			"recipe step missing path",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, type: recipe}\n",
			"recipe",
		},
		{
			"reserved output name",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p, output: session}\n",
			"reserved",
		},
		{
			"collect without foreach",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p, collect: out}\n",
			"collect",
		},
		{
			"unknown depends_on",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p, depends_on: [ghost]}\n",
			"ghost",
		},
		{
			"depends_on cycle",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p, depends_on: [b]}\n  - {id: b, agent: x, prompt: p, depends_on: [a]}\n",
			"cycle",
		},
		{
			"bad on_error",
			"name: r\ndescription: d\nversion: 1.0.0\nsteps:\n  - {id: a, agent: x, prompt: p, on_error: explode}\n",
			"on_error",
		},
		{
			"recursion depth out of range",
			"name: r\ndescription: d\nversion: 1.0.0\nrecursion: {max_depth: 50}\nsteps:\n  - {id: a, agent: x, prompt: p}\n",
			"max_depth",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			errs := rec.Validate()
			require.NotEmpty(t, errs)
			joined := ""
			for _, e := range errs {
				joined += e + "\n"
			}
			assert.Contains(t, joined, tt.want)
		})
	}
}

func TestStepDefaults(t *testing.T) {
	s := &Step{ID: "a"}

	assert.Equal(t, "item", s.LoopVar())
	assert.Equal(t, 600, s.TimeoutSeconds())
	assert.Equal(t, 100, s.MaxIter())
	assert.Equal(t, OnErrorFail, s.ErrorPolicy())

	s.As = "task"
	s.Timeout = 30
	s.MaxIterations = 5
	s.OnError = OnErrorContinue
	assert.Equal(t, "task", s.LoopVar())
	assert.Equal(t, 30, s.TimeoutSeconds())
	assert.Equal(t, 5, s.MaxIter())
	assert.Equal(t, OnErrorContinue, s.ErrorPolicy())
}

func TestRetryNormalized(t *testing.T) {
	var nilRetry *RetryConfig
	def := nilRetry.Normalized()
	assert.Equal(t, 1, def.MaxAttempts)
	assert.Equal(t, BackoffExponential, def.Backoff)
	assert.Equal(t, 5, def.InitialDelay)
	assert.Equal(t, 300, def.MaxDelay)

	custom := (&RetryConfig{MaxAttempts: 3, Backoff: BackoffLinear}).Normalized()
	assert.Equal(t, 3, custom.MaxAttempts)
	assert.Equal(t, BackoffLinear, custom.Backoff)
	assert.Equal(t, 5, custom.InitialDelay)
}

func TestRecursionDefaults(t *testing.T) {
	rec := &Recipe{Name: "r", Version: "1.0.0"}
	limits := rec.RecursionLimits()
	assert.Equal(t, 5, limits.MaxDepth)
	assert.Equal(t, 100, limits.MaxTotalSteps)

	rec.Recursion = &RecursionConfig{MaxDepth: 2, MaxTotalSteps: 10}
	limits = rec.RecursionLimits()
	assert.Equal(t, 2, limits.MaxDepth)
	assert.Equal(t, 10, limits.MaxTotalSteps)
}
