package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentd/contentd/internal/config"
	"github.com/contentd/contentd/internal/tokens"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an access token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		roles, _ := cmd.Flags().GetStringSlice("role")
		refs, _ := cmd.Flags().GetInt64Slice("ref")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.JWT.AccessTokenTTL
		}
		tok, err := tokens.GenerateAccessToken(cfg, tokens.Claims{Subject: args[0], Roles: roles, References: refs}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringSlice("role", nil, "role granted to the subject (repeatable)")
	tokenCmd.Flags().Int64Slice("ref", nil, "content id the subject is scoped to (repeatable)")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TOKEN_TTL)")
}
