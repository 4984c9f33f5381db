package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexushq/nexushub/internal/nexusconfig"
	"github.com/nexushq/nexushub/pkg/output"
	"github.com/nexushq/nexushub/pkg/security"
)

// tokenCmd groups local token administration against the hub's persisted
// tokens file, so an operator can mint or kill an API key without the hub
// process running.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or revoke API tokens without a running hub",
}

var tokenIssueUsername string

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a new long-lived API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTokenIssue()
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a previously issued API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTokenRevoke(args[0])
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenIssueUsername, "username", "", "username to embed in the token's user info")
	_ = tokenIssueCmd.MarkFlagRequired("username")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
}

func runTokenIssue() error {
	cfg, err := nexusconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider := security.NewTokenAuthProvider(cfg.State.TokensPath, nil)
	token, err := provider.GenerateToken(security.UserInfo{"username": tokenIssueUsername})
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	printer := output.New()
	printer.Info("token issued", "username", tokenIssueUsername, "path", cfg.State.TokensPath)
	printer.Print("%s\n", token)
	return nil
}

func runTokenRevoke(token string) error {
	cfg, err := nexusconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider := security.NewTokenAuthProvider(cfg.State.TokensPath, nil)
	if !provider.RevokeToken(token) {
		return fmt.Errorf("token not found")
	}

	output.New().Info("token revoked", "path", cfg.State.TokensPath)
	return nil
}
