package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"llm-gateway/pkg/utils"
)

var tokenFlags struct {
	userID string
	ttl    time.Duration
}

func init() {
	rootCmd.AddCommand(issueTokenCmd)
	issueTokenCmd.Flags().StringVar(&tokenFlags.userID, "user", "", "user id placed in the token")
	issueTokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", time.Hour, "token lifetime")
	_ = issueTokenCmd.MarkFlagRequired("user")
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign a debugging access token with the configured JWT secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Security.JWT.Secret == "" {
			return fmt.Errorf("security.jwt.secret is empty, authentication is disabled")
		}
		token, err := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer).
			GenerateToken(tokenFlags.userID, utils.TokenTypeAccess, tokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
