// Package recipe loads recipe files and runs static validation beyond
// the structural checks that parsing performs.
package recipe

import (
	"os"
	"path/filepath"
	"strings"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// Loader resolves recipe references against search directories.
type Loader struct {
	// SearchDirs are tried in order when the reference is not an
	// explicit path. Typically the project recipes dir first, then
	// the user recipes dir.
	SearchDirs []string
}

// NewLoader creates a loader searching the given directories.
func NewLoader(searchDirs ...string) *Loader {
	return &Loader{SearchDirs: searchDirs}
}

// Resolve turns a recipe reference into an existing file path.
// References containing a separator or ending in a YAML extension are
// treated as paths; bare names are searched as <dir>/<name>.yaml.
func (l *Loader) Resolve(ref string) (string, error) {
	if strings.ContainsRune(ref, os.PathSeparator) || hasYAMLExt(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", recerr.InvalidField("recipe", "recipe file not found").
				WithDetail("path", ref)
		}
		return ref, nil
	}

	for _, dir := range l.SearchDirs {
		for _, ext := range []string{".yaml", ".yml"} {
			candidate := filepath.Join(dir, ref+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", recerr.InvalidField("recipe", "recipe not found in search path").
		WithDetail("name", ref).
		WithDetail("search_dirs", l.SearchDirs)
}

// Load resolves, parses, and structurally validates a recipe.
func (l *Loader) Load(ref string) (*types.Recipe, string, error) {
	path, err := l.Resolve(ref)
	if err != nil {
		return nil, "", err
	}

	rec, err := types.ParseFile(path)
	if err != nil {
		return nil, "", err
	}
	if errs := rec.Validate(); len(errs) > 0 {
		return nil, "", recerr.InvalidField("recipe", errs[0]).
			WithDetail("path", path).
			WithDetail("errors", errs)
	}
	return rec, path, nil
}

// List returns the recipe names available in the search directories.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, dir := range l.SearchDirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !hasYAMLExt(e.Name()) {
				continue
			}
			name := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".yaml"), ".yml")
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func hasYAMLExt(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
