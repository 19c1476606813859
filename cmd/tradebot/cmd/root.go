package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "A rule-driven trading execution engine",
	Long: `Tradebot automates trading of a basket of instruments against a
market venue.

It evaluates a composable rule-based strategy against incoming price bars,
opens and closes positions, and tracks risk through conditional exit orders
(stop-loss, take-profit, trailing-stop). Every state change flows over an
in-process event bus for journaling and notification.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
