package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TickerFox/internal/app"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Queue an unsubscribe for every idle event webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Alerts.ReconcileIdleWebhooks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d unsubscribe job(s)\n", n)
				return nil
			})
		},
	}
}

func flushCountersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-counters",
		Short: "Write pending delivery counters to the webhook registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Counter.Flush(cmd.Context(), a.Repos.Alerts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Flushed counters for %d event(s)\n", n)
				return nil
			})
		},
	}
}
