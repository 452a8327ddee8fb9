package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "choked",
	Short: "Choked - distributed rate limiting for API clients",
	Long: `Choked enforces dual token-bucket rate limits per logical key: a
request-count bucket and a call-cost bucket, consumed all-or-nothing.

Bucket state lives in a shared backend (Redis, SQLite, a hosted bucket
service, or process memory), so any number of processes can share one
budget. Limits are declared in a YAML file as "count/unit" rates, for
example "50/s" or "100000/m".`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "choked.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
