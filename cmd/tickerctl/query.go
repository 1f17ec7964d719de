package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TickerFox/internal/pkg/querygen"
	"github.com/ManuelReschke/TickerFox/internal/pkg/superfeedr"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
)

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <ticker>",
		Short: "Parse a ticker and print its rule-based news query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ticker.Parse(args[0])
			if err != nil {
				return err
			}
			res := querygen.NewRuleGenerator().Generate(cmd.Context(), parsed.EventTicker, "")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Market:    %s\n", parsed.MarketTicker)
			fmt.Fprintf(out, "Event:     %s\n", parsed.EventTicker)
			fmt.Fprintf(out, "Title:     %s\n", ticker.FormatEventTitle(parsed.EventTicker))
			fmt.Fprintf(out, "Category:  %s\n", valueOrDefault(res.Category, "unknown"))
			fmt.Fprintf(out, "Entities:  %s\n", valueOrDefault(strings.Join(parsed.Entities, ", "), "none"))
			fmt.Fprintf(out, "Query:     %s\n", res.Query)
			fmt.Fprintf(out, "Topic:     %s\n", querygen.BuildTopicURL(res.Query))
			return nil
		},
	}
}

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a webhook signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := superfeedr.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
