package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alpharank",
	Short: "Alpharank - factor scoring and ranking engine",
	Long: `Alpharank Unified CLI

Sandboxed factor scoring over cross-sectional market data.
Factors are small JavaScript formulas; strategies combine them
into a weighted composite and produce a ranked top-N.

Usage:
  go run ./cmd/alpharank [command]

Examples:
  go run ./cmd/alpharank api
  go run ./cmd/alpharank run value_tilt
  go run ./cmd/alpharank validate my_factor.js --selection selection.yaml
  go run ./cmd/alpharank catalog list`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
