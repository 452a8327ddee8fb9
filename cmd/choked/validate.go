package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/choked/choked/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and report any validation errors.

Examples:
  # Validate the default file
  choked validate

  # Validate a specific file
  choked validate --config /etc/choked/choked.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", cfgFile)
	fmt.Printf("  store backend: %s\n", cfg.Store.Backend)
	fmt.Printf("  keys: %d\n", len(cfg.Limits))

	if verbose {
		keys := make([]string, 0, len(cfg.Limits))
		for key := range cfg.Limits {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			lc := cfg.Limits[key]
			fmt.Printf("    %s: requests=%s tokens=%s estimator=%s\n",
				key, orDash(lc.RequestLimit), orDash(lc.TokenLimit), orDash(lc.TokenEstimator))
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
