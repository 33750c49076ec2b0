package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/argument-tutor/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect the evaluator prompt document",
}

var promptsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every step and claim side and report gaps",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := prompt.Load(cfg.Prompts.Path, cfg.Prompts.MaxPasses)
		if err != nil {
			return err
		}
		return checkPrompts(cmd.OutOrStdout(), store)
	},
}

func init() {
	promptsCmd.AddCommand(promptsCheckCmd)
	rootCmd.AddCommand(promptsCmd)
}

// checkPrompts prints each issue. Only step/claim pairs that cannot be
// resolved fail the check.
func checkPrompts(w io.Writer, store *prompt.Store) error {
	issues := store.Check()
	if len(issues) == 0 {
		fmt.Fprintln(w, "prompts ok") //nolint:errcheck
		return nil
	}

	var fatal int
	for _, is := range issues {
		if is.Claim == "" {
			fmt.Fprintf(w, "warn  %-9s %s\n", is.Step, is.Problem) //nolint:errcheck
			continue
		}
		fatal++
		fmt.Fprintf(w, "error %-9s %-8s %s\n", is.Step, is.Claim, is.Problem) //nolint:errcheck
	}
	if fatal > 0 {
		return eris.Errorf("prompts: %d unresolved step/claim pair(s)", fatal)
	}
	return nil
}
