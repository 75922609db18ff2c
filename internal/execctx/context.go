// Package execctx implements the layered execution context (variable store)
// shared across steps within one recipe execution.
//
// The context is a stack of layers. Layer 0 holds the durable values:
// recipe-declared initial context, caller-provided variables, step outputs,
// and engine metadata. Scope layers pushed on top hold loop bindings; a
// lookup falls through layers top-down, and popping a layer is the sole
// mechanism for leaving loop scope, so stale bindings cannot leak.
package execctx

import (
	"sort"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// Context is the layered variable store for one execution.
// It is not safe for concurrent mutation; parallel foreach workers
// receive a Snapshot instead of the authoritative copy.
type Context struct {
	layers []map[string]any
}

// New creates a context whose base layer merges the given maps in order
// (later maps override earlier ones).
func New(bases ...map[string]any) *Context {
	base := make(map[string]any)
	for _, m := range bases {
		for k, v := range m {
			base[k] = v
		}
	}
	return &Context{layers: []map[string]any{base}}
}

// FromSnapshot reconstructs a context from a persisted flat snapshot.
func FromSnapshot(snapshot map[string]any) *Context {
	return New(snapshot)
}

// Set assigns a step output or caller variable in the base layer.
// Reserved namespaces (recipe, session, step, stage) cannot be assigned.
func (c *Context) Set(name string, value any) error {
	if types.IsReservedName(name) {
		return recerr.InvalidField(name, "name is reserved for engine metadata")
	}
	c.layers[0][name] = value
	return nil
}

// SetMeta assigns an engine metadata namespace (recipe, session, step, stage).
func (c *Context) SetMeta(name string, value map[string]any) {
	c.layers[0][name] = value
}

// Unset removes a name from the base layer.
func (c *Context) Unset(name string) {
	delete(c.layers[0], name)
}

// Push adds a scope layer with the given bindings. Bindings in the new
// layer shadow existing names until the layer is popped.
func (c *Context) Push(bindings map[string]any) {
	layer := make(map[string]any, len(bindings))
	for k, v := range bindings {
		layer[k] = v
	}
	c.layers = append(c.layers, layer)
}

// Pop removes the most recent scope layer. Popping the base layer is a no-op.
func (c *Context) Pop() {
	if len(c.layers) > 1 {
		c.layers = c.layers[:len(c.layers)-1]
	}
}

// Get resolves a top-level name, searching layers top-down.
func (c *Context) Get(name string) (any, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if v, ok := c.layers[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Lookup resolves a dotted path (e.g., "session.id") into nested maps.
func (c *Context) Lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	val, ok := c.Get(path[0])
	if !ok {
		return nil, false
	}
	for _, part := range path[1:] {
		m, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return val, true
}

// Names returns the sorted top-level names currently visible.
// Used for undefined-variable diagnostics; values are never included.
func (c *Context) Names() []string {
	seen := make(map[string]bool)
	for _, layer := range c.layers {
		for k := range layer {
			seen[k] = true
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of the visible bindings flattened into a
// single map. Scope layers shadow the base layer in the copy, so a
// snapshot taken inside a loop iteration includes the loop binding.
func (c *Context) Snapshot() map[string]any {
	flat := make(map[string]any)
	for _, layer := range c.layers {
		for k, v := range layer {
			flat[k] = deepCopy(v)
		}
	}
	return flat
}

// Fork returns an independent context seeded with a snapshot of this one
// plus the given extra bindings in a scope layer. Used for parallel
// foreach workers: they see the parent values but cannot mutate them.
func (c *Context) Fork(bindings map[string]any) *Context {
	forked := New(c.Snapshot())
	if len(bindings) > 0 {
		forked.Push(bindings)
	}
	return forked
}

// deepCopy copies nested maps and slices so snapshot holders cannot
// alias the authoritative context.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
