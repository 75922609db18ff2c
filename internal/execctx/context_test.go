package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	ctx := New(map[string]any{"base": "value"})

	require.NoError(t, ctx.Set("result", 42))

	got, ok := ctx.Get("result")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	got, ok = ctx.Get("base")
	require.True(t, ok)
	assert.Equal(t, "value", got)

	_, ok = ctx.Get("missing")
	assert.False(t, ok)
}

func TestSetRejectsReservedNames(t *testing.T) {
	ctx := New()
	for _, name := range []string{"recipe", "session", "step", "stage"} {
		assert.Error(t, ctx.Set(name, "x"), name)
	}
}

func TestBaseLayerMergeOrder(t *testing.T) {
	ctx := New(
		map[string]any{"a": 1, "b": 1},
		map[string]any{"b": 2},
	)

	got, _ := ctx.Get("a")
	assert.Equal(t, 1, got)
	got, _ = ctx.Get("b")
	assert.Equal(t, 2, got)
}

func TestScopeLayerShadowsAndPops(t *testing.T) {
	ctx := New(map[string]any{"item": "outer", "other": "base"})

	ctx.Push(map[string]any{"item": "inner"})

	got, _ := ctx.Get("item")
	assert.Equal(t, "inner", got)
	got, _ = ctx.Get("other")
	assert.Equal(t, "base", got)

	ctx.Pop()
	got, _ = ctx.Get("item")
	assert.Equal(t, "outer", got)
}

func TestPopBaseIsNoOp(t *testing.T) {
	ctx := New(map[string]any{"a": 1})
	ctx.Pop()
	ctx.Pop()

	got, ok := ctx.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestLookupDottedPath(t *testing.T) {
	ctx := New(map[string]any{
		"result": map[string]any{
			"files": map[string]any{"count": 3},
		},
	})

	got, ok := ctx.Lookup([]string{"result", "files", "count"})
	require.True(t, ok)
	assert.Equal(t, 3, got)

	_, ok = ctx.Lookup([]string{"result", "missing"})
	assert.False(t, ok)

	// Traversal into a non-map fails rather than panicking.
	_, ok = ctx.Lookup([]string{"result", "files", "count", "deeper"})
	assert.False(t, ok)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	nested := map[string]any{"inner": []any{"a"}}
	ctx := New(map[string]any{"data": nested})

	snap := ctx.Snapshot()
	snap["data"].(map[string]any)["inner"] = "mutated"

	got, _ := ctx.Lookup([]string{"data", "inner"})
	assert.Equal(t, []any{"a"}, got)
}

func TestSnapshotFlattensScopes(t *testing.T) {
	ctx := New(map[string]any{"base": 1})
	ctx.Push(map[string]any{"item": "x"})

	snap := ctx.Snapshot()
	assert.Equal(t, 1, snap["base"])
	assert.Equal(t, "x", snap["item"])
}

func TestForkIsolation(t *testing.T) {
	ctx := New(map[string]any{"shared": "original"})

	fork := ctx.Fork(map[string]any{"item": "worker-1"})
	require.NoError(t, fork.Set("shared", "changed"))
	require.NoError(t, fork.Set("new", "value"))

	got, _ := ctx.Get("shared")
	assert.Equal(t, "original", got)
	_, ok := ctx.Get("new")
	assert.False(t, ok)

	got, _ = fork.Get("item")
	assert.Equal(t, "worker-1", got)
}

func TestNamesSorted(t *testing.T) {
	ctx := New(map[string]any{"zeta": 1, "alpha": 2})
	ctx.Push(map[string]any{"mid": 3})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ctx.Names())
}
