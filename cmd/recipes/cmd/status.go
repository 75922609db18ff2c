package cmd

import (
	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/status"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show session progress",
	Long: `Show detailed progress for a session: step counts, stage
approvals, and any gate awaiting a decision.

Without a session ID, summarizes every session of the current project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatusCmd,
}

var (
	statusNoColor bool
	statusQuiet   bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusNoColor, "no-color", false, "disable colored output")
	statusCmd.Flags().BoolVarP(&statusQuiet, "quiet", "q", false, "one line per session")
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	_, _, closer, sessions, _, dir, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := status.FormatOptions{NoColor: statusNoColor, Quiet: statusQuiet}

	if len(args) == 1 {
		st, err := sessions.Find(args[0])
		if err != nil {
			return err
		}
		// Best effort: the recipe file may have moved since the run.
		rec, _ := types.ParseFile(st.RecipePath)
		cmd.Print(status.FormatDetailedSession(status.NewSessionSummary(st, rec), opts))
		return nil
	}

	list, err := sessions.List(dir)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		cmd.Println("No sessions.")
		return nil
	}

	summaries := make([]*status.SessionSummary, 0, len(list))
	for _, st := range list {
		rec, _ := types.ParseFile(st.RecipePath)
		summaries = append(summaries, status.NewSessionSummary(st, rec))
	}
	cmd.Println(status.FormatSessionList(summaries, opts))
	return nil
}
