package cmd

import (
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions for the current project",
	RunE:  runSessionsList,
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove finished sessions past the retention window",
	Long: `Remove completed and failed sessions older than the configured
retention period. Paused and running sessions are never removed.`,
	RunE: runSessionsCleanup,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	_, _, closer, sessions, _, dir, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	list, err := sessions.List(dir)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		cmd.Println("No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	_, _ = w.Write([]byte("SESSION\tRECIPE\tSTATUS\tSTARTED\tSTEPS\n"))
	for _, st := range list {
		_, _ = w.Write([]byte(
			st.SessionID + "\t" +
				st.RecipeName + "\t" +
				st.Status + "\t" +
				st.StartedAt.Format("2006-01-02 15:04:05") + "\t" +
				strconv.Itoa(len(st.CompletedSteps)) + "\n"))
	}
	return nil
}

func runSessionsCleanup(cmd *cobra.Command, args []string) error {
	_, _, closer, sessions, _, _, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	removed, err := sessions.CleanupOld()
	if err != nil {
		return err
	}
	cmd.Printf("Removed %d session(s)\n", removed)
	return nil
}
