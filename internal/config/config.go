package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	// AdminEmail and AdminPassword describe the bootstrap admin account
	// created on startup when no user with that email exists.
	AdminEmail    string
	AdminPassword string

	// SessionSecret signs session cookies. When empty a random secret is
	// generated per process, which logs everyone out on restart.
	SessionSecret string

	LogLevel  string
	LogFormat string

	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	PaymentWebhookSecret   string
	CheckoutURL            string
	PriceProfessionalCents int64
	PricePremiumCents      int64
	Currency               string

	// RateLimitStore selects where limiter counters live: "memory" keeps
	// them process-local, "database" shares them across instances.
	RateLimitStore         string
	RateLimitAnonymous     int
	RateLimitAuthenticated int
	RateLimitWindow        time.Duration
	RateLimitPruneInterval time.Duration

	// RevisionSweepInterval enables the in-process expiration sweep.
	// Zero leaves sweeping to an external scheduler (`careershift sweep`).
	RevisionSweepInterval time.Duration

	// MetricsToken guards /metrics. Empty disables the endpoint.
	MetricsToken string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		ListenAddr:    getenv("APP_LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("APP_DATABASE_URL"),
		AdminEmail:    getenv("APP_ADMIN_EMAIL", "admin@careershift.local"),
		AdminPassword: os.Getenv("APP_ADMIN_PASSWORD"),
		SessionSecret: os.Getenv("APP_SESSION_SECRET"),
		LogLevel:      getenv("APP_LOG_LEVEL", "info"),
		LogFormat:     getenv("APP_LOG_FORMAT", "json"),

		LLMAPIKey:  os.Getenv("APP_LLM_API_KEY"),
		LLMModel:   getenv("APP_LLM_MODEL", "gemini-2.0-flash"),
		LLMTimeout: getduration("APP_LLM_TIMEOUT", 90*time.Second),

		PaymentWebhookSecret:   os.Getenv("APP_PAYMENT_WEBHOOK_SECRET"),
		CheckoutURL:            getenv("APP_CHECKOUT_URL", "https://checkout.example.com/pay"),
		PriceProfessionalCents: int64(getint("APP_PRICE_PROFESSIONAL_CENTS", 2900)),
		PricePremiumCents:      int64(getint("APP_PRICE_PREMIUM_CENTS", 7900)),
		Currency:               getenv("APP_CURRENCY", "usd"),

		RateLimitStore:         getenv("APP_RATE_LIMIT_STORE", "memory"),
		RateLimitAnonymous:     getint("APP_RATE_LIMIT_ANONYMOUS", 5),
		RateLimitAuthenticated: getint("APP_RATE_LIMIT_AUTHENTICATED", 20),
		RateLimitWindow:        getduration("APP_RATE_LIMIT_WINDOW", time.Hour),
		RateLimitPruneInterval: getduration("APP_RATE_LIMIT_PRUNE_INTERVAL", 10*time.Minute),

		RevisionSweepInterval: getduration("APP_REVISION_SWEEP_INTERVAL", 0),

		MetricsToken: os.Getenv("APP_METRICS_TOKEN"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// getduration accepts Go duration strings ("90s", "1h"); "0" disables.
func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
