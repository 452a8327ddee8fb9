package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/choked/choked/pkg/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the configured keys and their limits",
	RunE:  runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(cfg.Limits))
	for key := range cfg.Limits {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tREQUESTS\tTOKENS\tESTIMATOR")
	for _, key := range keys {
		lc := cfg.Limits[key]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			key, orDash(lc.RequestLimit), orDash(lc.TokenLimit), orDash(lc.TokenEstimator))
	}
	return w.Flush()
}
