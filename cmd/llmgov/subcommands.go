package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// createStatsCommand shows scheduler activity
func createStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler activity and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			stats, err := client.Stats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

// createCostsCommand shows one user's cost aggregation
func createCostsCommand() *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "costs USER_ID",
		Short: "Show a user's spend, breakdowns, and budget utilization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			stats, err := client.CostStats(args[0], timeframe)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "all", "Aggregation window (daily, weekly, monthly, all)")
	return cmd
}

// createSystemCommand shows the cross-user cost view
func createSystemCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show system-wide spend and top users/models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			stats, err := client.SystemStats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

// createConcurrencyCommand adjusts the ceiling at runtime
func createConcurrencyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "concurrency LIMIT",
		Short: "Adjust the concurrency ceiling [1,50]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("limit must be an integer: %w", err)
			}

			client := newClient()
			defer client.Close()

			if err := client.AdjustConcurrency(limit); err != nil {
				return err
			}
			fmt.Printf("concurrency ceiling set to %d\n", limit)
			return nil
		},
	}
}

// createBudgetCommand configures a user budget
func createBudgetCommand() *cobra.Command {
	var daily, monthly, threshold float64

	cmd := &cobra.Command{
		Use:   "budget USER_ID",
		Short: "Set a user's daily/monthly budget limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			if err := client.SetBudget(args[0], daily, monthly, threshold); err != nil {
				return err
			}
			fmt.Printf("budget configured for %s (daily $%.2f, monthly $%.2f, alert at %.0f%%)\n",
				args[0], daily, monthly, threshold)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&daily, "daily", "d", 0, "Daily spend limit in USD (0 disables)")
	cmd.Flags().Float64VarP(&monthly, "monthly", "m", 0, "Monthly spend limit in USD (0 disables)")
	cmd.Flags().Float64Var(&threshold, "threshold", 80, "Alert threshold percentage")
	return cmd
}

// createCheckCommand runs an ad-hoc rate-limit check
func createCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check USER_ID MODEL",
		Short: "Run a rate-limit check for a (user, model) pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			decision, err := client.CheckLimit(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(decision)
		},
	}
}
