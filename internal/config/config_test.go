package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 600*time.Second, cfg.Defaults.StepTimeout)
	assert.Equal(t, 100, cfg.Defaults.MaxIterations)
	assert.Equal(t, 7, cfg.Sessions.RetentionDays)
	assert.Equal(t, "/bin/sh", cfg.Runner.Shell)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[sessions]
retention_days = 30

[runner]
command = "agent-cli"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Sessions.RetentionDays)
	assert.Equal(t, "agent-cli", cfg.Runner.Command)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/bin/sh", cfg.Runner.Shell)
	assert.Equal(t, 100, cfg.Defaults.MaxIterations)
}

func TestLoadFromDirProjectOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".recipes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".recipes", "config.toml"), []byte(`
[logging]
level = "debug"
`), 0644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRecipesDirResolution(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/proj/recipes", cfg.RecipesDir("/proj"))

	cfg.Paths.RecipesDir = "/abs/recipes"
	assert.Equal(t, "/abs/recipes", cfg.RecipesDir("/proj"))
}

func TestSessionsDirExpandsHome(t *testing.T) {
	cfg := Default()
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".recipes", "projects"), cfg.SessionsDir())
}

func TestValidateErrors(t *testing.T) {
	cfg := Default()
	cfg.Defaults.StepTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sessions.RetentionDays = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Paths.SessionsDir = ""
	assert.Error(t, cfg.Validate())
}
