package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/config"
	"github.com/robotdad/amplifier-collection-recipes/internal/logging"
	"github.com/robotdad/amplifier-collection-recipes/internal/recipe"
	"github.com/robotdad/amplifier-collection-recipes/internal/session"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Declarative multi-step agent workflows",
	Long: `Recipes runs declarative YAML workflows: ordered steps that delegate
work to agents, with conditions, loops, nested recipes, approval gates,
and durable sessions that survive interruption.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "working directory (default: current)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("recipes {{.Version}}\n")
}

// getWorkDir returns the effective working directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}

// setup loads config and constructs the logger, session manager, and
// recipe loader shared by most commands.
func setup() (*config.Config, *slog.Logger, io.Closer, *session.Manager, *recipe.Loader, string, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, nil, nil, nil, nil, "", err
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, nil, nil, nil, nil, "", err
	}
	if verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return nil, nil, nil, nil, nil, "", err
	}

	sessions := session.NewManager(cfg.SessionsDir(), cfg.Sessions.RetentionDays)
	loader := recipe.NewLoader(cfg.RecipesDir(dir))

	return cfg, logger, closer, sessions, loader, dir, nil
}
