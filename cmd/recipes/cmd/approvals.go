package cmd

import (
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List sessions waiting on an approval gate",
	RunE:  runApprovals,
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovals(cmd *cobra.Command, args []string) error {
	_, _, closer, sessions, _, _, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	pending, err := sessions.ListPendingApprovals()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending approvals.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	_, _ = w.Write([]byte("SESSION\tRECIPE\tSTAGE\tREQUESTED\tTIMEOUT\n"))
	for _, st := range pending {
		timeout := "none"
		if !st.Pending.TimeoutAt.IsZero() {
			timeout = st.Pending.TimeoutAt.Format(time.RFC3339)
		}
		_, _ = w.Write([]byte(
			st.SessionID + "\t" +
				st.RecipeName + "\t" +
				st.Pending.Stage + "\t" +
				st.Pending.RequestedAt.Format(time.RFC3339) + "\t" +
				timeout + "\n"))
	}
	return nil
}
