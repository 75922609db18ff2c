package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robotdad/amplifier-collection-recipes/internal/recipe"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate <recipe>",
	Short: "Validate a recipe without running it",
	Long: `Check a recipe for structural problems, undefined variable
references, and missing sub-recipe files.

Errors block execution; warnings do not. Exit code is non-zero when the
recipe is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, _, closer, _, loader, _, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	path, err := loader.Resolve(args[0])
	if err != nil {
		return err
	}

	var res *recipe.ValidationResult
	rec, parseErr := types.ParseFile(path)
	if parseErr != nil {
		res = &recipe.ValidationResult{Errors: []string{parseErr.Error()}}
	} else {
		res = recipe.Validate(rec, filepath.Dir(path))
	}

	if validateJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
	} else {
		for _, e := range res.Errors {
			cmd.Printf("error: %s\n", e)
		}
		for _, w := range res.Warnings {
			cmd.Printf("warning: %s\n", w)
		}
		if res.Valid {
			cmd.Printf("%s is valid\n", path)
		}
	}

	if !res.Valid {
		return fmt.Errorf("recipe %s is invalid", args[0])
	}
	return nil
}
