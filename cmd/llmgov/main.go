package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/daemon"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "llmgov",
	Short: "Inspect and tune the running LLM admission governor",
	Long: `llmgov talks to a running llmgovd daemon over its Unix admin socket.

It can show scheduler activity, per-user and system-wide cost aggregates,
adjust the concurrency ceiling at runtime, configure user budgets, and run
ad-hoc rate-limit checks.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/tmp/llmgovd.sock", "Daemon admin socket path")

	rootCmd.AddCommand(
		createStatsCommand(),
		createCostsCommand(),
		createSystemCommand(),
		createConcurrencyCommand(),
		createBudgetCommand(),
		createCheckCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *daemon.Client {
	return daemon.NewClient(socketPath)
}

// printJSON renders any payload as indented JSON on stdout
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
