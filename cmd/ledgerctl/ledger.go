package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"collective-ledger/internal/application"
	"collective-ledger/internal/domain/model"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func refundCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refund <transaction-id>",
		Short: "Refund a contribution through its processor and record the reversal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				out, err := c.Refunds.Refund(ctx, operator, id)
				if err != nil {
					return err
				}
				fmt.Printf("refunded transaction %d (processor refund %s, fee refunded: %t)\n", id, out.ProcessorRefundID, out.FeeRefunded)
				printPair("reversal", out.Reversal)
				if out.Cover != nil {
					printPair("cover", out.Cover)
				}
				for _, p := range out.FeeReversals {
					printPair("fee", p)
				}
				return nil
			})
		},
	}
}

func balanceCmd(g *globalFlags) *cobra.Command {
	var (
		asOf   string
		byHost bool
	)
	cmd := &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var at *time.Time
			if asOf != "" {
				t, err := parseAt(asOf)
				if err != nil {
					return err
				}
				at = &t
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				if byHost {
					groups, err := c.Balance.BalancesByHost(ctx, operator, id, at)
					if err != nil {
						return err
					}
					return printJSON(groups)
				}
				b, err := c.Balance.GetBalance(ctx, operator, id, at)
				if err != nil {
					return err
				}
				fmt.Printf("%d %s (as of %s)\n", b.Amount, b.Currency, b.AsOf.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "at", "", "balance as of this RFC3339 time")
	cmd.Flags().BoolVar(&byHost, "by-host", false, "split the balance per host and host currency")
	return cmd
}

func carryforwardCmd(g *globalFlags) *cobra.Command {
	var end string
	cmd := &cobra.Command{
		Use:   "carryforward <account-id>",
		Short: "Close a period and reopen it with the same balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if end == "" {
				return fmt.Errorf("--end is required")
			}
			endOfPeriod, err := parseAt(end)
			if err != nil {
				return err
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				cf, err := c.Balance.CreateCarryforward(ctx, operator, id, endOfPeriod)
				if err != nil {
					return err
				}
				if cf == nil {
					fmt.Println("balance is zero, nothing to carry forward")
					return nil
				}
				fmt.Printf("carried %d forward\n", cf.Balance)
				if cf.Warning != "" {
					fmt.Printf("warning: %s\n", cf.Warning)
				}
				printRow("closing", cf.Closing)
				printRow("opening", cf.Opening)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "end of the closed period (RFC3339)")
	return cmd
}

func deactivateCmd(g *globalFlags) *cobra.Command {
	var (
		reason string
		pause  bool
	)
	cmd := &cobra.Command{
		Use:   "deactivate <account-id>",
		Short: "Stop every recurring order paying to or from an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := model.OrderStatusCancelled
			if pause {
				status = model.OrderStatusPaused
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				n, err := c.Orders.DeactivateForAccount(ctx, operator, id, reason, status)
				if err != nil {
					return err
				}
				fmt.Printf("%d orders moved to %s\n", n, status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "deactivation reason (required)")
	cmd.Flags().BoolVar(&pause, "pause", false, "pause instead of cancel")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func transactionsCmd(g *globalFlags) *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "transactions <account-id>",
		Short: "List ledger rows of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				rows, err := c.Ledger.ListByAccount(ctx, model.TransactionQuery{
					AccountID: id,
					Kind:      model.TransactionKind(strings.ToUpper(kind)),
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				for _, t := range rows {
					printRow("", t)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "filter by kind")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}

func printPair(label string, p *model.TransactionPair) {
	printRow(label+" credit", p.Credit)
	printRow(label+" debit", p.Debit)
}

func printRow(label string, t *model.Transaction) {
	if label != "" {
		fmt.Printf("  %-16s ", label)
	}
	fmt.Printf("#%-8d %-6s %-26s %10d %s net=%d coll=%d from=%d group=%s %s\n",
		t.ID, t.Type, t.Kind, t.Amount, t.Currency, t.NetAmountInCollectiveCurrency,
		t.CollectiveID, t.FromCollectiveID, t.TransactionGroup, t.CreatedAt.Format(time.RFC3339))
}
