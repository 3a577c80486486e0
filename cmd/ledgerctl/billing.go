package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"collective-ledger/internal/application"
	"collective-ledger/internal/domain/model"
)

func billingCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Recurring billing",
	}
	cmd.AddCommand(billingRunCmd(g), billingDueCmd(g))
	return cmd
}

func billingRunCmd(g *globalFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Charge every due subscription once",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				report, err := c.Billing.Run(ctx, now)
				if err != nil {
					return err
				}
				fmt.Printf("run %s: processed=%d succeeded=%d failed=%d deactivated=%d skipped=%d\n",
					report.RunID, report.Processed, report.Succeeded, report.Failed, report.Deactivated, report.Skipped)
				for _, it := range report.Items {
					if it.Status == model.ItemCharged {
						continue
					}
					fmt.Printf("  order %-8d %-12s %s%s\n", it.OrderID, it.Status, it.FailureReason, it.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "run as of this RFC3339 time (default now)")
	return cmd
}

func billingDueCmd(g *globalFlags) *cobra.Command {
	var (
		at    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List orders that the next run would charge",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			return withContainer(g, func(ctx context.Context, c *application.Container) error {
				orders, err := c.Billing.FindDue(ctx, now, 0, limit)
				if err != nil {
					return err
				}
				for _, o := range orders {
					next, retries := "-", 0
					if s := o.Subscription; s != nil {
						retries = s.ChargeRetryCount
						if s.NextChargeDate != nil {
							next = s.NextChargeDate.Format(time.RFC3339)
						}
					}
					fmt.Printf("%-8d %d -> %d  %d %s  next=%s retries=%d\n",
						o.ID, o.FromAccountID, o.ToAccountID, o.Amount, o.Currency, next, retries)
				}
				fmt.Printf("%d due\n", len(orders))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "as of this RFC3339 time (default now)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum orders")
	return cmd
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t.UTC(), nil
}
