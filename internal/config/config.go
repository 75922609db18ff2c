package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// PathsConfig holds path configuration.
type PathsConfig struct {
	// SessionsDir is the base directory for persisted sessions.
	// Sessions are grouped by project slug underneath it.
	SessionsDir string `toml:"sessions_dir"`

	// RecipesDir is the default search directory for recipe files.
	RecipesDir string `toml:"recipes_dir"`

	LogsDir string `toml:"logs_dir"`
}

// DefaultsConfig holds default execution values applied when a step
// does not specify its own.
type DefaultsConfig struct {
	StepTimeout   time.Duration `toml:"step_timeout"`
	MaxIterations int           `toml:"max_iterations"`
}

// SessionsConfig holds session retention settings.
type SessionsConfig struct {
	// RetentionDays controls auto-cleanup of terminal sessions.
	RetentionDays int `toml:"retention_days"`
}

// RunnerConfig holds agent runner settings.
type RunnerConfig struct {
	// Command is the agent adapter invoked per unit of work.
	// It receives the rendered prompt on stdin and reports its
	// result as JSON (or plain text) on stdout.
	Command string `toml:"command"`

	// Shell used to run Command. Defaults to /bin/sh.
	Shell string `toml:"shell"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main configuration struct for the recipes CLI.
type Config struct {
	Version  string         `toml:"version"`
	Paths    PathsConfig    `toml:"paths"`
	Defaults DefaultsConfig `toml:"defaults"`
	Sessions SessionsConfig `toml:"sessions"`
	Runner   RunnerConfig   `toml:"runner"`
	Logging  LoggingConfig  `toml:"logging"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			SessionsDir: "~/.recipes/projects",
			RecipesDir:  "recipes",
			LogsDir:     ".recipes/logs",
		},
		Defaults: DefaultsConfig{
			StepTimeout:   600 * time.Second,
			MaxIterations: 100,
		},
		Sessions: SessionsConfig{
			RetentionDays: 7,
		},
		Runner: RunnerConfig{
			Command: "",
			Shell:   "/bin/sh",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
			File:   "",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.recipes/config.toml -> .recipes/config.toml
// Later configs override earlier ones (project-level takes precedence).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	// Load global config first (if exists)
	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".recipes", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	// Load project config (overrides global)
	projectConfig := filepath.Join(dir, ".recipes", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Paths.SessionsDir == "" {
		return fmt.Errorf("sessions_dir is required")
	}
	if c.Defaults.StepTimeout <= 0 {
		return fmt.Errorf("step_timeout must be positive")
	}
	if c.Sessions.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative")
	}
	return nil
}

// SessionsDir returns the absolute sessions base directory, expanding ~.
func (c *Config) SessionsDir() string {
	return expandHome(c.Paths.SessionsDir)
}

// RecipesDir returns the absolute recipes directory path.
func (c *Config) RecipesDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.RecipesDir) {
		return c.Paths.RecipesDir
	}
	return filepath.Join(baseDir, c.Paths.RecipesDir)
}

// LogFile returns the absolute log file path, or empty if file logging is off.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	logsDir := c.Paths.LogsDir
	if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(baseDir, logsDir)
	}
	return filepath.Join(logsDir, c.Logging.File)
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
