package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/internal/app"
	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
	"github.com/ManuelReschke/TickerFox/internal/pkg/env"
	"github.com/ManuelReschke/TickerFox/internal/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env.SetupEnvFile()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[Logging] %v", err)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Shutdown()

	httpApp, err := application.NewHTTP(ctx)
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	application.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tickerfox listening", zap.String("addr", application.Addr()), zap.String("callback", cfg.CallbackURL()))
		errCh <- httpApp.Listen(application.Addr())
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}

	if err := httpApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}
