package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var evaluateFlags struct {
	scenarioID int64
	folds      int
	seed       int64
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "K-fold evaluation of the active model on verified annotations",
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.Int64Var(&evaluateFlags.scenarioID, "scenario", 0, "Scenario ID (required)")
	f.IntVar(&evaluateFlags.folds, "folds", 0, "Number of folds (0 = configured default)")
	f.Int64Var(&evaluateFlags.seed, "seed", 0, "Shuffle seed (0 = configured default)")

	_ = evaluateCmd.MarkFlagRequired("scenario")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Learner.EvaluateCurrent(evaluateFlags.scenarioID, evaluateFlags.folds, evaluateFlags.seed)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Samples:   %d\n", m.SampleCount)
	fmt.Fprintf(out, "Precision: %.4f\n", m.Precision)
	fmt.Fprintf(out, "Recall:    %.4f\n", m.Recall)
	fmt.Fprintf(out, "Micro F1:  %.4f\n", m.MicroF1())
	fmt.Fprintf(out, "Macro F1:  %.4f\n", m.MacroF1)
	if len(m.FoldF1) > 0 {
		fmt.Fprintf(out, "Folds:     %v\n", m.FoldF1)
	}

	types := make([]string, 0, len(m.PerTypeF1))
	for t := range m.PerTypeF1 {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %-12s f1=%.4f support=%d\n", t, m.PerTypeF1[t], m.Support[t])
	}
	return nil
}
