package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/cli"
)

var denyCmd = &cobra.Command{
	Use:   "deny <session-id>",
	Short: "Deny a pending stage gate",
	Long: `Deny the pending approval gate of a paused session.

Denial is terminal: the gated stage never runs and the session is
marked failed. The decision is recorded in the approval history.`,
	Args: cobra.ExactArgs(1),
	RunE: runDenyCmd,
}

var (
	denyNotes string
	denyYes   bool
)

func init() {
	denyCmd.Flags().StringVar(&denyNotes, "notes", "", "denial notes")
	denyCmd.Flags().BoolVarP(&denyYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(denyCmd)
}

func runDenyCmd(cmd *cobra.Command, args []string) error {
	_, _, closer, sessions, _, _, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := sessions.Find(args[0])
	if err != nil {
		return err
	}

	if !denyYes {
		stage := ""
		if st.Pending != nil {
			stage = " " + st.Pending.Stage
		}
		ok, err := cli.Confirm(os.Stdin, "Deny stage"+stage+"? This fails the session permanently.", false)
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Cancelled.")
			return nil
		}
	}

	if err := sessions.Deny(st, denyNotes); err != nil {
		return err
	}
	cmd.Printf("Denied. Session %s is failed.\n", st.SessionID)
	return nil
}
