package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/executor"
	"github.com/robotdad/amplifier-collection-recipes/internal/runner"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted or approved session",
	Long: `Resume a session from its last checkpoint.

Completed steps and stages are skipped. A session paused on an approval
gate resumes only after the gate is decided; if the gate's timeout has
passed, its default disposition is applied first.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, sessions, _, dir, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unit := runner.NewCommandRunner(cfg.Runner.Command)
	unit.Shell = cfg.Runner.Shell
	unit.Workdir = dir

	exec := executor.New(unit, sessions, logger)
	st, err := exec.Resume(ctx, args[0])
	if err != nil {
		return err
	}

	return reportOutcome(cmd, st)
}
