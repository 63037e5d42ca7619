// learnctl is the operator CLI of the entity learning service: scenarios, training,
// evaluation and model registry maintenance against the configured store.
//
// Usage:
//
//	learnctl scenarios
//	learnctl train --scenario=<id> [--seed=<n>]
//	learnctl evaluate --scenario=<id> [--folds=<k>]
//	learnctl versions
//	learnctl publish --source=<zip> --accuracy=<f1> [--samples=<n>] [--force]
//	learnctl rollback --version=<vN>
//	learnctl token --subject=<name> [--ttl=24h]
package main

import (
	"fmt"
	"os"

	"entity-learning-service/internal/app"
	"entity-learning-service/internal/config"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:           "learnctl",
	Short:         "Operate the entity learning service",
	Long:          "learnctl trains, evaluates and versions entity extraction models\nfrom the verified annotations in the service store.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "configs/config.yml", "Path to config file (.yml or .toml)")

	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads the configuration and opens the store and registry
func openApp() (*app.App, error) {
	cfg, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}
