package main

import (
	"fmt"

	"entity-learning-service/internal/registry"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List published model versions",
	RunE:  runVersions,
}

var publishFlags struct {
	source   string
	accuracy float64
	samples  int
	force    bool
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a model artifact as a new version",
	RunE:  runPublish,
}

var rollbackFlags struct {
	version string
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Make an archived version current again",
	RunE:  runRollback,
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishFlags.source, "source", "", "Artifact path (default: active model)")
	f.Float64Var(&publishFlags.accuracy, "accuracy", 0, "Accuracy (F1) of the artifact (required)")
	f.IntVar(&publishFlags.samples, "samples", 0, "Number of training samples")
	f.BoolVar(&publishFlags.force, "force", false, "Publish even if accuracy regresses")
	_ = publishCmd.MarkFlagRequired("accuracy")

	rollbackCmd.Flags().StringVar(&rollbackFlags.version, "version", "", "Version tag, e.g. v3 (required)")
	_ = rollbackCmd.MarkFlagRequired("version")
}

func runVersions(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.Learner.Versions()
	if err != nil {
		return err
	}
	current, err := a.Learner.CurrentVersion()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintf(out, "No published versions of %s\n", a.Config.Model.Name)
		return nil
	}
	for _, v := range versions {
		marker := " "
		if current != nil && current.Version == v.Version {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-4s accuracy=%.4f samples=%-5d %s %s\n",
			marker, v.Version, v.Accuracy, v.Samples, v.TrainedAt.Format("2006-01-02 15:04:05"), v.FileName)
	}
	return nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Learner.Publish(publishFlags.source, registry.PublishOptions{
		Accuracy:            publishFlags.accuracy,
		SampleCount:         publishFlags.samples,
		BlockOnRegression:   !publishFlags.force && *a.Config.Learning.BlockOnRegression,
		RegressionThreshold: *a.Config.Learning.RegressionThreshold,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published %s as %s\n", info.FileName, info.Version)
	return nil
}

func runRollback(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Learner.Rollback(rollbackFlags.version)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Current version is now %s (accuracy %.4f)\n", info.Version, info.Accuracy)
	return nil
}
