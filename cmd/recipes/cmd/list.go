package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipes available in the search path",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	_, _, closer, _, loader, _, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	names, err := loader.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		cmd.Println("No recipes found.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}
