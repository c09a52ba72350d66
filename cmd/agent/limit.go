package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	rldomain "gigsync/middleware/ratelimit/domain"
)

func newLimitCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Inspect action rate limits",
	}
	cmd.AddCommand(newLimitCheckCmd(c))
	return cmd
}

func newLimitCheckCmd(c *cli) *cobra.Command {
	var times int
	cmd := &cobra.Command{
		Use:   "check CATEGORY KEY",
		Short: "Count an action for KEY in CATEGORY and print the decision",
		Long: `Count an action for KEY in CATEGORY and print the decision.

With ratelimit.store=memory the state lives only in this process, so the
command is mostly useful with ratelimit.store=kv.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			lim := a.limiters.Get(rldomain.Category(args[0]))
			if lim == nil {
				return fmt.Errorf("unknown category %q (known: %v)", args[0], rldomain.Categories())
			}

			out := cmd.OutOrStdout()
			for i := 0; i < times; i++ {
				dec, err := lim.Allow(cmd.Context(), rldomain.Key(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "allowed=%t remaining=%d/%d reset=%s",
					dec.Allowed, dec.Remaining, dec.Limit, dec.ResetAt.UTC().Format(time.RFC3339))
				if !dec.Allowed {
					fmt.Fprintf(out, " retry_after=%s", dec.RetryAfter.Round(time.Second))
				}
				fmt.Fprintln(out)
			}

			tot := a.stats.Total()
			fmt.Fprintf(out, "total allowed=%d denied=%d\n", tot.Allowed, tot.Denied)

			if a.redisStats != nil {
				all, err := a.redisStats.Snapshot(cmd.Context(), lim.Category())
				if err != nil {
					return fmt.Errorf("read redis stats: %w", err)
				}
				fmt.Fprintf(out, "all-time allowed=%d denied=%d\n", all.Allowed, all.Denied)
				if c.cfg.Stats.TrackKeys {
					top, err := a.redisStats.TopDenied(cmd.Context(), lim.Category(), 5)
					if err != nil {
						return fmt.Errorf("read redis stats: %w", err)
					}
					for _, z := range top {
						fmt.Fprintf(out, "denied %v=%.0f\n", z.Member, z.Score)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "number of actions to count")
	return cmd
}
