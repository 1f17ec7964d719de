package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TickerFox/internal/pkg/env"
)

func TestLoadDefaults(t *testing.T) {
	prev := env.Env
	t.Cleanup(func() { env.Env = prev })
	env.Env = map[string]string{}

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, []string{"Sports"}, cfg.BlockedCategories)
	assert.Equal(t, 10*time.Second, cfg.SuperfeedrTimeout)
	assert.Equal(t, 5*time.Second, cfg.SMTPTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 8, cfg.DispatchConcurrency)
}

func TestLoadPrefersEnvFileValues(t *testing.T) {
	prev := env.Env
	t.Cleanup(func() { env.Env = prev })

	t.Setenv("DB_DRIVER", "postgres")
	env.Env = map[string]string{
		"DB_DRIVER":          "sqlite",
		"PUBLIC_URL":         "https://fox.example.com/",
		"BLOCKED_CATEGORIES": "Sports,Entertainment",
	}

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, []string{"Sports", "Entertainment"}, cfg.BlockedCategories)
	assert.Equal(t, "https://fox.example.com/api/webhooks/superfeedr", cfg.CallbackURL())
}
