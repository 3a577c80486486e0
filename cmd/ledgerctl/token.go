package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"collective-ledger/internal/config"
	"collective-ledger/internal/infra/api"
)

// tokenCmd mints an API token; it only needs the jwt secret, not the database.
func tokenCmd(g *globalFlags) *cobra.Command {
	var (
		adminOf  []int64
		asOperator bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Mint an API token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(g.configPath, g.dev)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			auth := api.NewAuthenticator(cfg.API.JWTSecret, cfg.Ledger.OperatorIDs, ttl)
			tok, err := auth.Mint(id, adminOf, asOperator)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&adminOf, "admin-of", nil, "account ids the bearer administers")
	cmd.Flags().BoolVar(&asOperator, "operator", false, "grant the platform operator role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
