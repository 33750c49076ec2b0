package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/model"
	"github.com/sells-group/argument-tutor/internal/workbook"
)

var (
	evalStep     string
	evalClaim    string
	evalText     string
	evalEvidence string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one submission and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}

		env, err := initEvaluator(cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return evaluateOnce(cmd.Context(), env.Evaluator, cmd.OutOrStdout(), evalStep, evalClaim, evalText, evalEvidence)
	},
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalStep, "step", "evidence", "step to evaluate (evidence or reasoning)")
	f.StringVar(&evalClaim, "claim", "", "claim side (agree or disagree)")
	f.StringVar(&evalText, "text", "", "submission text")
	f.StringVar(&evalEvidence, "evidence", "", "approved evidence, for reasoning")
	_ = evaluateCmd.MarkFlagRequired("claim")
	_ = evaluateCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(evaluateCmd)
}

func evaluateOnce(ctx context.Context, ev workbook.Evaluator, w io.Writer, step, claim, text, evidence string) error {
	s, ok := model.ParseStep(step)
	if !ok {
		return eris.Errorf("unknown step %q", step)
	}
	c, ok := model.ParseClaim(claim)
	if !ok || !c.IsConcrete() {
		return eris.Errorf("claim must be agree or disagree, got %q", claim)
	}

	res, err := ev.Evaluate(ctx, evaluator.Request{
		Step:     s,
		Claim:    c,
		Text:     text,
		Evidence: evidence,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
