package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/executor"
	"github.com/robotdad/amplifier-collection-recipes/internal/runner"
	"github.com/robotdad/amplifier-collection-recipes/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <recipe>",
	Short: "Run a recipe",
	Long: `Run a recipe by name or path.

Bare names are searched in the configured recipes directory; anything
with a path separator or a .yaml/.yml extension is used as a path.
Initial variables are passed with --var name=value and overlay the
recipe's context defaults.

If the recipe pauses at an approval gate, the session id is printed and
the command exits; decide with 'recipes approve' or 'recipes deny'.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runVars []string

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "initial variable (format: name=value)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, sessions, loader, dir, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	rec, path, err := loader.Load(args[0])
	if err != nil {
		return err
	}

	vars := make(map[string]any)
	for _, v := range runVars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid variable format: %s (expected name=value)", v)
		}
		vars[parts[0]] = parts[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unit := runner.NewCommandRunner(cfg.Runner.Command)
	unit.Shell = cfg.Runner.Shell
	unit.Workdir = dir

	exec := executor.New(unit, sessions, logger)
	st, err := exec.Run(ctx, rec, executor.RunOptions{
		RecipePath:  path,
		ProjectPath: dir,
		Context:     vars,
	})
	if err != nil {
		return err
	}

	if st.Status == session.StatusCompleted {
		// Best-effort retention sweep after a terminal run.
		if _, err := sessions.CleanupOld(); err != nil {
			logger.Debug("session cleanup", "error", err)
		}
	}

	return reportOutcome(cmd, st)
}

// reportOutcome prints the final run status for run and resume.
func reportOutcome(cmd *cobra.Command, st *session.State) error {
	switch st.Status {
	case session.StatusPaused:
		cmd.Printf("Paused for approval at stage %q.\n", st.Pending.Stage)
		if st.Pending.Prompt != "" {
			cmd.Printf("\n  %s\n\n", st.Pending.Prompt)
		}
		cmd.Printf("Session: %s\n", st.SessionID)
		cmd.Printf("Decide with: recipes approve %s | recipes deny %s\n", st.SessionID, st.SessionID)
	case session.StatusCompleted:
		cmd.Printf("Recipe %q completed. Session: %s\n", st.RecipeName, st.SessionID)
	default:
		cmd.Printf("Session %s finished with status %s\n", st.SessionID, st.Status)
	}
	return nil
}
