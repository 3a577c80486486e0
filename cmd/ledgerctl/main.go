package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"collective-ledger/internal/application"
	"collective-ledger/internal/config"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/infra/logging"
)

var Version = "dev"

// operator is the actor every ledgerctl command acts as.
var operator = model.Actor{Operator: true}

type globalFlags struct {
	configPath string
	dev        bool
}

func main() {
	var g globalFlags
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tool for the collective ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&g.dev, "dev", false, "developer mode")

	rootCmd.AddCommand(billingCmd(&g))
	rootCmd.AddCommand(refundCmd(&g))
	rootCmd.AddCommand(balanceCmd(&g))
	rootCmd.AddCommand(carryforwardCmd(&g))
	rootCmd.AddCommand(deactivateCmd(&g))
	rootCmd.AddCommand(transactionsCmd(&g))
	rootCmd.AddCommand(tokenCmd(&g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withContainer loads config, builds the container and runs fn with a context
// cancelled on SIGINT/SIGTERM.
func withContainer(g *globalFlags, fn func(ctx context.Context, c *application.Container) error) error {
	cfg, err := config.LoadConfig(g.configPath, g.dev)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := application.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	c.Start(ctx)
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
