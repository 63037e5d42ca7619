package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List scenarios with queue and dataset counts",
	RunE:  runScenarios,
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scenarios, err := a.Learner.ListScenarios()
	if err != nil {
		return fmt.Errorf("list scenarios: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(scenarios) == 0 {
		fmt.Fprintln(out, "No scenarios")
		return nil
	}
	for _, s := range scenarios {
		stats, err := a.Learner.Stats(s.ID)
		if err != nil {
			return err
		}
		types := "any"
		if len(s.EntityTypes) > 0 {
			types = strings.Join(s.EntityTypes, ",")
		}
		fmt.Fprintf(out, "#%-3d %-20s types=%s verified=%d pending=%d\n", s.ID, s.Name, types, stats.Verified, stats.Pending)
	}
	return nil
}
