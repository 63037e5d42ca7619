package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"entity-learning-service/internal/model"

	"github.com/spf13/cobra"
)

var trainFlags struct {
	scenarioID   int64
	seed         int64
	testFraction float64
	minFrequency int
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run incremental training for a scenario and apply the quality gate",
	RunE:  runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.Int64Var(&trainFlags.scenarioID, "scenario", 0, "Scenario ID (required)")
	f.Int64Var(&trainFlags.seed, "seed", 0, "Shuffle seed (0 = configured default)")
	f.Float64Var(&trainFlags.testFraction, "test-fraction", 0, "Held-out test share, clamped to [0.1, 0.4]")
	f.IntVar(&trainFlags.minFrequency, "min-frequency", 0, "Drop surfaces seen fewer times than this")

	_ = trainCmd.MarkFlagRequired("scenario")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	progress := func(p model.Progress) {
		fmt.Fprintf(out, "[%5.1f%%] %-10s %s\n", p.Percent, p.Stage, p.Message)
	}

	res := a.Learner.TrainIncremental(ctx, trainFlags.scenarioID, model.Params{
		Seed:         trainFlags.seed,
		TestFraction: trainFlags.testFraction,
		MinFrequency: trainFlags.minFrequency,
	}, progress)

	fmt.Fprintf(out, "Outcome: %s\n", res.Outcome)
	fmt.Fprintf(out, "Message: %s\n", res.Message)
	if res.TestCount > 0 {
		fmt.Fprintf(out, "Split:   train=%d validation=%d test=%d\n", res.TrainCount, res.ValidCount, res.TestCount)
		fmt.Fprintf(out, "F1:      %.4f -> %.4f (macro %.4f -> %.4f)\n",
			res.MetricsBefore.F1, res.MetricsAfter.F1, res.MetricsBefore.MacroF1, res.MetricsAfter.MacroF1)
	}
	if res.Published != nil {
		fmt.Fprintf(out, "Published: %s (%s)\n", res.Published.Version, res.Published.FileName)
	}
	if !res.Success {
		return fmt.Errorf("training did not complete: %s", res.Outcome)
	}
	return nil
}
