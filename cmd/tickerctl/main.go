package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/internal/app"
	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
	"github.com/ManuelReschke/TickerFox/internal/pkg/env"
	"github.com/ManuelReschke/TickerFox/internal/pkg/logging"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tickerctl",
		Short:         "TickerFox administration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(queryCmd())
	root.AddCommand(secretCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(flushCountersCmd())
	root.AddCommand(userCmd())

	return root
}

// withApp loads configuration and connects to every backing service.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	env.SetupEnvFile()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer a.Shutdown()
	return fn(a)
}
