package main

import (
	"fmt"
	"time"

	"entity-learning-service/internal/config"
	"entity-learning-service/internal/middleware"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	role    string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with auth.jwt_secret",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.subject, "subject", "", "Token subject (required)")
	f.StringVar(&tokenFlags.role, "role", "operator", "Role claim")
	f.DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return err
	}

	token, expiresAt, err := middleware.IssueToken(cfg.Auth.JWTSecret, tokenFlags.subject, tokenFlags.role, tokenFlags.ttl)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
