package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/cli"
	"github.com/robotdad/amplifier-collection-recipes/internal/executor"
	"github.com/robotdad/amplifier-collection-recipes/internal/runner"
	"github.com/robotdad/amplifier-collection-recipes/internal/session"
)

var approveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Approve a pending stage gate",
	Long: `Approve the pending approval gate of a paused session.

The decision is recorded in the session's approval history, then the
session resumes from the gated stage unless --no-resume is given.

Without a session ID, presents the sessions awaiting approval to pick
from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApproveCmd,
}

var (
	approveNotes    string
	approveNoResume bool
)

func init() {
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "approval notes")
	approveCmd.Flags().BoolVar(&approveNoResume, "no-resume", false, "record the decision without resuming")
	rootCmd.AddCommand(approveCmd)
}

func runApproveCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, sessions, _, dir, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	sessionID := ""
	if len(args) == 1 {
		sessionID = args[0]
	} else {
		sessionID, err = pickPendingSession(sessions)
		if err != nil {
			return err
		}
		if sessionID == "" {
			return nil
		}
	}

	st, err := sessions.Find(sessionID)
	if err != nil {
		return err
	}
	if err := sessions.Approve(st, approveNotes); err != nil {
		return err
	}
	cmd.Printf("Approved stage for session %s\n", st.SessionID)

	if approveNoResume {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unit := runner.NewCommandRunner(cfg.Runner.Command)
	unit.Shell = cfg.Runner.Shell
	unit.Workdir = dir

	exec := executor.New(unit, sessions, logger)
	st, err = exec.Resume(ctx, sessionID)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, st)
}

// pickPendingSession lets the user choose among sessions with a gate
// awaiting a decision. Returns "" when there is nothing to pick or the
// user cancels.
func pickPendingSession(sessions *session.Manager) (string, error) {
	pending, err := sessions.ListPendingApprovals()
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		fmt.Println("No sessions awaiting approval.")
		return "", nil
	}

	options := make([]cli.SelectOption, 0, len(pending))
	for _, st := range pending {
		label := fmt.Sprintf("%s (%s, stage %s)", st.SessionID, st.RecipeName, st.Pending.Stage)
		options = append(options, cli.SelectOption{Value: st.SessionID, Label: label})
	}
	return cli.Select(os.Stdin, "Sessions awaiting approval:", options)
}
