package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/execctx"
)

func newTestResolver(vars map[string]any) *Resolver {
	return NewResolver(execctx.New(vars))
}

func TestResolve(t *testing.T) {
	r := newTestResolver(map[string]any{
		"name": "build",
		"nested": map[string]any{
			"count": 3,
		},
		"items": []any{"a", "b"},
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain text untouched", "no references here", "no references here"},
		{"single reference", "run {{name}} now", "run build now"},
		{"dotted path", "count is {{nested.count}}", "count is 3"},
		{"list renders as JSON", "items: {{items}}", `items: ["a","b"]`},
		{"whitespace inside braces", "{{ name }}", "build"},
		{"repeated reference", "{{name}}-{{name}}", "build-build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUndefinedVariable(t *testing.T) {
	r := newTestResolver(map[string]any{"known": 1})

	_, err := r.Resolve("{{known}} and {{unknown}}")
	require.Error(t, err)
	assert.Equal(t, recerr.CodeUndefinedVariable, recerr.Code(err))
	assert.Contains(t, err.Error(), "unknown")
}

func TestResolveAllOrNothing(t *testing.T) {
	r := newTestResolver(map[string]any{"a": "x"})

	// The resolvable token must not leak into any partial result.
	got, err := r.Resolve("{{a}} {{missing}}")
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestEvalPreservesNativeTypes(t *testing.T) {
	list := []any{"one", "two"}
	r := newTestResolver(map[string]any{
		"tasks": list,
		"obj":   map[string]any{"k": "v"},
		"n":     42,
	})

	got, err := r.Eval("{{tasks}}")
	require.NoError(t, err)
	assert.Equal(t, list, got)

	got, err = r.Eval("{{obj}}")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, got)

	got, err = r.Eval(" {{n}} ")
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	// Mixed content renders to a string.
	got, err = r.Eval("n={{n}}")
	require.NoError(t, err)
	assert.Equal(t, "n=42", got)
}

func TestEvalMap(t *testing.T) {
	r := newTestResolver(map[string]any{
		"target": "prod",
		"hosts":  []any{"h1", "h2"},
	})

	got, err := r.EvalMap(map[string]any{
		"env":    "{{target}}",
		"hosts":  "{{hosts}}",
		"static": 7,
		"nested": map[string]any{"inner": "{{target}}"},
		"list":   []any{"{{target}}", "fixed"},
	})
	require.NoError(t, err)

	assert.Equal(t, "prod", got["env"])
	assert.Equal(t, []any{"h1", "h2"}, got["hosts"])
	assert.Equal(t, 7, got["static"])
	assert.Equal(t, map[string]any{"inner": "prod"}, got["nested"])
	assert.Equal(t, []any{"prod", "fixed"}, got["list"])
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "s", "s"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"float", 1.5, "1.5"},
		{"slice", []any{1, "a"}, `[1,"a"]`},
		{"map", map[string]any{"k": 1}, `{"k":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestVars(t *testing.T) {
	vars := Vars("{{a}} then {{b.c}} and {{a}} again")
	assert.Equal(t, []string{"a", "b.c"}, vars)

	assert.Empty(t, Vars("no references"))
}
