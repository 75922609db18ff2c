// Package template substitutes {{path.to.var}} references in recipe
// strings and evaluates step conditions against the execution context.
package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/execctx"
)

// varPattern matches {{identifier(.identifier)*}} tokens.
var varPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Resolver substitutes template references using a layered context.
type Resolver struct {
	ctx *execctx.Context
}

// NewResolver creates a resolver over the given context.
func NewResolver(ctx *execctx.Context) *Resolver {
	return &Resolver{ctx: ctx}
}

// Resolve substitutes every {{path}} token in the template.
// Resolution is all-or-nothing: if any token is unresolvable the whole
// call fails with an undefined-variable error naming the token and the
// currently available top-level names.
func (r *Resolver) Resolve(template string) (string, error) {
	var firstErr error

	result := varPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.Split(varPattern.FindStringSubmatch(match)[1], ".")
		val, ok := r.ctx.Lookup(path)
		if !ok {
			if firstErr == nil {
				firstErr = recerr.UndefinedVariable(strings.Join(path, "."), r.ctx.Names())
			}
			return match
		}
		return Stringify(val)
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Eval resolves an expression preserving the native type of the value.
// A pure reference like "{{tasks}}" returns the underlying list or map;
// mixed content like "prefix-{{name}}" renders to a string. Used where a
// field expects a raw value: foreach sources and sub-recipe context maps.
func (r *Resolver) Eval(expr string) (any, error) {
	trimmed := strings.TrimSpace(expr)

	if m := varPattern.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		path := strings.Split(m[1], ".")
		val, ok := r.ctx.Lookup(path)
		if !ok {
			return nil, recerr.UndefinedVariable(m[1], r.ctx.Names())
		}
		return val, nil
	}

	return r.Resolve(expr)
}

// EvalMap resolves every value of a map, preserving native types for
// pure references and recursing into nested maps and lists.
func (r *Resolver) EvalMap(m map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(m))
	for k, v := range m {
		evaled, err := r.evalValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		result[k] = evaled
	}
	return result, nil
}

func (r *Resolver) evalValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.Eval(val)
	case map[string]any:
		return r.EvalMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			evaled, err := r.evalValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = evaled
		}
		return result, nil
	default:
		return v, nil
	}
}

// Stringify converts any value to its textual representation.
// Maps and slices are JSON-marshaled instead of using Go's %v format,
// so a list output renders as ["a","b"] rather than [a b].
func Stringify(val any) string {
	if val == nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}

	return fmt.Sprintf("%v", val)
}

// Vars extracts the distinct {{...}} reference paths in a template.
// Used by recipe validation to analyze variable references ahead of
// execution.
func Vars(template string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range varPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}
