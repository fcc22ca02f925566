package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_DATABASE_URL", "sqlite://careershift.db")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "sqlite://careershift.db", cfg.DatabaseURL)
	assert.Equal(t, 5, cfg.RateLimitAnonymous)
	assert.Equal(t, 20, cfg.RateLimitAuthenticated)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, "memory", cfg.RateLimitStore)
	assert.Equal(t, time.Duration(0), cfg.RevisionSweepInterval)
	assert.Equal(t, int64(2900), cfg.PriceProfessionalCents)
	assert.Equal(t, int64(7900), cfg.PricePremiumCents)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_RATE_LIMIT_ANONYMOUS", "3")
	t.Setenv("APP_RATE_LIMIT_WINDOW", "30m")
	t.Setenv("APP_REVISION_SWEEP_INTERVAL", "6h")
	t.Setenv("APP_LLM_TIMEOUT", "45s")

	cfg := Load()

	assert.Equal(t, 3, cfg.RateLimitAnonymous)
	assert.Equal(t, 30*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 6*time.Hour, cfg.RevisionSweepInterval)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("APP_RATE_LIMIT_AUTHENTICATED", "lots")
	t.Setenv("APP_RATE_LIMIT_WINDOW", "-1h")
	t.Setenv("APP_PRICE_PREMIUM_CENTS", "0")

	cfg := Load()

	assert.Equal(t, 20, cfg.RateLimitAuthenticated)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, int64(7900), cfg.PricePremiumCents)
}
