package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	offline "gigsync/offline/domain"
)

func newQueueCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the persisted offline queue",
	}
	cmd.AddCommand(
		newQueueListCmd(c),
		newQueueEnqueueCmd(c),
		newQueueReplayCmd(c),
		newQueueClearCmd(c),
	)
	return cmd
}

func newQueueListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print queued operations as JSON, in insertion order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ops, err := a.queue.GetQueue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ops)
		},
	}
}

func newQueueEnqueueCmd(c *cli) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "enqueue TYPE",
		Short: "Append an operation to the queue without dispatching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := offline.Operation{Type: args[0], Payload: map[string]any{}}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
					return fmt.Errorf("--payload: %w", err)
				}
			}

			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			qo, err := a.queue.Enqueue(cmd.Context(), op)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), qo)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", `operation payload as a JSON object, e.g. '{"gigId":"g1"}'`)
	return cmd
}

func newQueueReplayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Probe the backend and, if reachable, replay and clear the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if a.backend == nil {
				return errNoBackend
			}

			a.watcher.Update(cmd.Context(), a.prober().Probe(cmd.Context()))
			report, err := a.queue.ProcessQueue(cmd.Context())
			if errors.Is(err, offline.ErrOffline) {
				return fmt.Errorf("backend %s is unreachable; queue kept: %w", c.cfg.Backend.URL, err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, res := range report.Results {
				line := fmt.Sprintf("%s\t%s\t%s", res.Operation.ID, res.Operation.Type, res.Outcome)
				if res.Err != nil {
					line += "\t" + res.Err.Error()
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "dispatched=%d failed=%d skipped=%d\n",
				report.Count(offline.OutcomeDispatched),
				report.Count(offline.OutcomeFailed),
				report.Count(offline.OutcomeSkipped))
			return nil
		},
	}
}

func newQueueClearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued operation without replaying",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.queue.Clear(cmd.Context())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
