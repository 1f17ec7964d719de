// Package app wires the TickerFox components together.
package app

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/controllers"
	"github.com/ManuelReschke/TickerFox/app/repository"
	apiv1 "github.com/ManuelReschke/TickerFox/internal/api/v1"
	"github.com/ManuelReschke/TickerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/TickerFox/internal/pkg/archive"
	"github.com/ManuelReschke/TickerFox/internal/pkg/cache"
	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
	"github.com/ManuelReschke/TickerFox/internal/pkg/database"
	"github.com/ManuelReschke/TickerFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/TickerFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TickerFox/internal/pkg/mail"
	"github.com/ManuelReschke/TickerFox/internal/pkg/market"
	"github.com/ManuelReschke/TickerFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TickerFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/TickerFox/internal/pkg/querygen"
	"github.com/ManuelReschke/TickerFox/internal/pkg/router"
	"github.com/ManuelReschke/TickerFox/internal/pkg/sms"
	"github.com/ManuelReschke/TickerFox/internal/pkg/superfeedr"
)

const (
	metadataCachePrefix = "kalshi:event:"
	limiterRedisDB      = 2
)

type App struct {
	Config     config.Config
	Logger     *zap.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Repos      *repository.Repositories
	Alerts     *alerts.Service
	Dispatcher *dispatch.Dispatcher
	Counter    *counter.Counter
	Jobs       *jobqueue.Manager
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
}

// New connects to the database and redis and builds every service. Nothing
// is started.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.SetupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	rdb := cache.SetupCache(cfg)

	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	hub := superfeedr.NewClient(cfg.SuperfeedrHubURL, cfg.SuperfeedrLogin, cfg.SuperfeedrToken, cfg.SuperfeedrTimeout, logger.Named("superfeedr"))
	generator := querygen.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAITimeout, logger.Named("querygen"))
	metadata := market.NewClient(cfg.KalshiBaseURL, cfg.KalshiTimeout, cache.NewStore(rdb, metadataCachePrefix), cfg.KalshiCacheTTL, logger.Named("market"))

	queue := jobqueue.NewQueue(rdb, cfg.JobQueueWorkers)
	jobs := jobqueue.NewManager(queue)

	alertSvc := alerts.NewService(repos.Alerts, hub, generator, alerts.Options{
		CallbackURL:       cfg.CallbackURL(),
		BlockedCategories: cfg.BlockedCategories,
		Metadata:          metadata,
		Plans:             repos.User,
		Retries:           queue,
		Metrics:           m,
		Logger:            logger.Named("alerts"),
	})
	queue.RegisterHandler(jobqueue.JobTypeUnsubscribeEvent, jobqueue.UnsubscribeHandler(alertSvc))

	mailer, err := mail.NewMailer(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if !mailer.Configured() {
		logger.Warn("SMTP_HOST not set, email deliveries will fail")
	}

	deliveries := counter.New(rdb)
	texts := sms.NewSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.TwilioTimeout, logger)
	if !texts.Configured() {
		logger.Warn("Twilio not configured, SMS deliveries will fail")
	}
	opts := dispatch.Options{
		Concurrency: cfg.DispatchConcurrency,
		SMS:         texts,
		Recorder:    deliveries,
		Metrics:     m,
		Logger:      logger,
	}
	archiver, err := archive.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		opts.Archiver = archiver
	}
	dispatcher := dispatch.NewDispatcher(repos.Alerts, repos.Alerts, repos.User, mailer, opts)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Redis:      rdb,
		Repos:      repos,
		Alerts:     alertSvc,
		Dispatcher: dispatcher,
		Counter:    deliveries,
		Jobs:       jobs,
		Registry:   reg,
		Metrics:    m,
	}
	if err := a.schedule(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) schedule() error {
	if err := a.Jobs.AddSchedule("reconcile-webhooks", a.Config.ReconcileSchedule, func(ctx context.Context) error {
		n, err := a.Alerts.ReconcileIdleWebhooks(ctx)
		if n > 0 {
			a.Logger.Info("idle webhooks reconciled", zap.Int("count", n))
		}
		return err
	}); err != nil {
		return err
	}
	return a.Jobs.AddSchedule("flush-delivery-counters", a.Config.FlushCountersSchedule, func(ctx context.Context) error {
		_, err := a.Counter.Flush(ctx, a.Repos.Alerts)
		return err
	})
}

// NewHTTP builds the fiber application with every route installed.
func (a *App) NewHTTP(ctx context.Context) (*fiber.App, error) {
	if _, err := apiv1.Load(ctx); err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:   "TickerFox",
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), fiberlogger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    "/docs/api/",
		FileContent: apiv1.Document,
		Path:        "v1",
		Title:       "TickerFox API",
	}))

	router.InstallRouter(app, router.Dependencies{
		Webhooks:       controllers.NewWebhookController(a.Dispatcher, 0),
		Alerts:         controllers.NewAlertController(a.Alerts, a.Logger.Named("api")),
		Users:          a.Repos.User,
		LimiterStorage: a.limiterStorage(),
		MetricsHandler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		MonitorUser:    a.Config.MonitorUser,
		MonitorPass:    a.Config.MonitorPass,
	})
	return app, nil
}

// limiterStorage shares the cache server, on its own database.
func (a *App) limiterStorage() fiber.Storage {
	host, portStr, err := net.SplitHostPort(a.Redis.Options().Addr)
	if err != nil {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: a.Redis.Options().Password,
		Database: limiterRedisDB,
		Reset:    false,
	})
}

// Start launches the job queue workers and cron schedules.
func (a *App) Start() {
	a.Jobs.Start()
}

// Addr is the listen address.
func (a *App) Addr() string {
	return fmt.Sprintf("%s:%s", a.Config.AppHost, a.Config.AppPort)
}

func (a *App) Shutdown() {
	a.Logger.Info("tickerfox shutting down")
	a.Jobs.Stop()
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("failed to close redis", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
