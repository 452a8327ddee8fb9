package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkFlags struct {
	key  string
	cost float64
	wait bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a call would be admitted",
	Long: `Make one admission attempt for a key against the configured store and
report the decision. The attempt consumes from the shared buckets exactly
like a real caller would.

Exits 0 when admitted and 2 when denied, so the command can gate shell
pipelines.

Examples:
  # Would one chat request be admitted?
  choked check --key chat

  # A call estimated at 1200 tokens
  choked check --key chat --cost 1200

  # Block until admitted (honouring the configured wait timeout)
  choked check --key chat --cost 1200 --wait`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.key, "key", "", "logical key to check (required)")
	checkCmd.Flags().Float64Var(&checkFlags.cost, "cost", 0, "call cost in tokens")
	checkCmd.Flags().BoolVar(&checkFlags.wait, "wait", false, "wait for admission instead of a single attempt")
	checkCmd.MarkFlagRequired("key")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	lim, ok := reg.Limiter(checkFlags.key)
	if !ok {
		return fmt.Errorf("key %q is not configured", checkFlags.key)
	}

	ctx := context.Background()
	dec, err := lim.Acquire(ctx, checkFlags.cost)
	if err == nil && !dec.Granted && checkFlags.wait {
		dec, err = lim.Await(ctx, checkFlags.cost)
	}
	if err != nil {
		return err
	}

	if dec.Granted {
		fmt.Printf("admitted: key=%s cost=%g", checkFlags.key, checkFlags.cost)
		if dec.RequestsRemaining >= 0 {
			fmt.Printf(" requests_remaining=%.0f", dec.RequestsRemaining)
		}
		if dec.CostRemaining >= 0 {
			fmt.Printf(" tokens_remaining=%.0f", dec.CostRemaining)
		}
		fmt.Println()
		return nil
	}

	fmt.Printf("denied: key=%s cost=%g retry_in=%s\n", checkFlags.key, checkFlags.cost, dec.Wait)
	reg.Close()
	os.Exit(2)
	return nil
}
