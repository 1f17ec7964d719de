package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/ManuelReschke/TickerFox/internal/pkg/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV,default=prod"`
	AppHost     string `env:"APP_HOST,default=0.0.0.0"`
	AppPort     string `env:"APP_PORT,default=4000"`
	PublicURL   string `env:"PUBLIC_URL,default=http://localhost:4000"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	MonitorUser string `env:"MONITOR_USER,default=admin"`
	MonitorPass string `env:"MONITOR_PASSWORD"`

	DBDriver          string        `env:"DB_DRIVER,default=mysql"`
	DBHost            string        `env:"DB_HOST,default=127.0.0.1"`
	DBPort            int           `env:"DB_PORT,default=3306"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME,default=tickerfox"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBPath            string        `env:"DB_PATH,default=tickerfox.db"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	CacheHost     string `env:"CACHE_HOST,default=localhost"`
	CachePort     string `env:"CACHE_PORT,default=6379"`
	CachePassword string `env:"CACHE_PASSWORD"`

	SuperfeedrHubURL  string        `env:"SUPERFEEDR_HUB_URL,default=https://push.superfeedr.com"`
	SuperfeedrLogin   string        `env:"SUPERFEEDR_LOGIN"`
	SuperfeedrToken   string        `env:"SUPERFEEDR_TOKEN"`
	SuperfeedrTimeout time.Duration `env:"SUPERFEEDR_TIMEOUT,default=10s"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	OpenAIModel   string        `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT,default=10s"`

	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT,default=587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPFrom     string        `env:"SMTP_FROM,default=alerts@tickerfox.local"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT,default=5s"`

	TwilioAccountSID string        `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string        `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string        `env:"TWILIO_PHONE_NUMBER"`
	TwilioTimeout    time.Duration `env:"TWILIO_TIMEOUT,default=10s"`

	KalshiBaseURL  string        `env:"KALSHI_BASE_URL,default=https://api.elections.kalshi.com/trade-api/v2"`
	KalshiTimeout  time.Duration `env:"KALSHI_TIMEOUT,default=5s"`
	KalshiCacheTTL time.Duration `env:"KALSHI_CACHE_TTL,default=6h"`

	BlockedCategories   []string `env:"BLOCKED_CATEGORIES,default=Sports"`
	DispatchConcurrency int      `env:"DISPATCH_CONCURRENCY,default=8"`

	S3ArchiveEnabled bool   `env:"S3_ARCHIVE_ENABLED,default=false"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3Region         string `env:"S3_REGION,default=us-east-1"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3PathPrefix     string `env:"S3_PATH_PREFIX"`

	ReconcileSchedule     string `env:"RECONCILE_SCHEDULE,default=@every 15m"`
	FlushCountersSchedule string `env:"FLUSH_COUNTERS_SCHEDULE,default=@every 1m"`
	JobQueueWorkers       int    `env:"JOB_QUEUE_WORKERS,default=2"`
}

// Load reads the configuration from the loaded .env map first and the
// process environment second.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target: &cfg,
		Lookuper: envconfig.MultiLookuper(
			envconfig.MapLookuper(env.Env),
			envconfig.OsLookuper(),
		),
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CallbackURL is the public address the hub posts deliveries to.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/webhooks/superfeedr"
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}
