package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"careershift/internal/config"
	"careershift/internal/db"
	"careershift/internal/http/handlers"
	appmw "careershift/internal/http/middleware"
	"careershift/internal/logger"
	"careershift/internal/payment"
	"careershift/internal/ratelimit"
	"careershift/internal/revision"
	"careershift/internal/roadmap"
	"careershift/internal/session"
	ui "careershift/web"
)

const usage = `usage: careershift [serve|migrate|sweep]

  serve    run the web server (default)
  migrate  apply database migrations and exit
  sweep    expire stale revision requests once and exit
`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logger configuration: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "migrate":
		err = migrate(cfg)
	case "sweep":
		err = sweep(ctx, cfg)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func migrate(cfg *config.Config) error {
	if _, err := db.Connect(cfg); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	zap.L().Info("migrations applied")
	return nil
}

func sweep(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	svc := revision.NewService(revision.NewGormStore(conn), revision.NewGormTiers(conn))
	n, err := svc.MarkExpired(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("revision sweep finished", zap.Int64("expired", n))
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.EnsureBootstrapAdmin(conn, cfg); err != nil {
		return fmt.Errorf("ensure bootstrap admin: %w", err)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		if secret, err = session.RandomSecret(); err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		zap.L().Warn("APP_SESSION_SECRET is not set; sessions will not survive a restart")
	}
	signer := session.NewSigner(secret)

	handlers.InitPrometheusMetrics()

	limiter, err := newLimiter(conn, cfg)
	if err != nil {
		return err
	}
	limiter.StartJanitor(ctx, cfg.RateLimitPruneInterval)
	anon := ratelimit.Config{MaxRequests: cfg.RateLimitAnonymous, Window: cfg.RateLimitWindow}
	authed := ratelimit.Config{MaxRequests: cfg.RateLimitAuthenticated, Window: cfg.RateLimitWindow}

	revisions := revision.NewService(revision.NewGormStore(conn), revision.NewGormTiers(conn))
	revision.StartSweepWorker(ctx, revisions, cfg.RevisionSweepInterval)

	var gen roadmap.Generator
	if cfg.LLMAPIKey != "" {
		g, err := roadmap.NewGeminiGenerator(ctx, roadmap.GeminiConfig{
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return fmt.Errorf("create roadmap generator: %w", err)
		}
		gen = g
	} else {
		zap.L().Warn("APP_LLM_API_KEY is not set; roadmap generation is disabled")
	}
	roadmaps := roadmap.NewService(conn, gen)

	payments := payment.NewService(conn, payment.Config{
		WebhookSecret: cfg.PaymentWebhookSecret,
		CheckoutURL:   cfg.CheckoutURL,
		Currency:      cfg.Currency,
		Prices: map[db.Tier]int64{
			db.TierProfessional: cfg.PriceProfessionalCents,
			db.TierPremium:      cfg.PricePremiumCents,
		},
	})
	if cfg.PaymentWebhookSecret == "" {
		zap.L().Warn("APP_PAYMENT_WEBHOOK_SECRET is not set; every payment webhook will be rejected")
	}

	r := router.New()
	user := appmw.RequireUser
	admin := appmw.RequireAdmin

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.ServeFS("/static/{filepath:*}", ui.StaticFS())

	r.GET("/login", handlers.LoginForm(cfg))
	r.POST("/login", handlers.LoginSubmit(conn, signer))
	r.POST("/signup", handlers.Signup(conn, signer))
	r.POST("/logout", handlers.Logout())
	r.POST("/account/password", user(handlers.ChangePasswordSelf(conn, cfg, signer)))

	r.GET("/", user(handlers.Dashboard(roadmaps, revisions, payments)))
	r.GET("/admin", admin(handlers.AdminPage(conn, revisions)))
	r.POST("/admin/users/{id}/reset-password", admin(handlers.ResetPassword(conn, cfg)))
	r.POST("/admin/users/{id}/delete", admin(handlers.DeleteUser(conn, cfg)))

	r.POST("/api/roadmaps", appmw.RateLimit(limiter, anon, authed)(handlers.CreateRoadmap(roadmaps)))
	r.GET("/api/roadmaps", user(handlers.ListRoadmaps(roadmaps)))
	r.GET("/api/roadmaps/{id}", user(handlers.GetRoadmap(roadmaps)))
	r.DELETE("/api/roadmaps/{id}", user(handlers.DeleteRoadmap(roadmaps)))

	r.GET("/api/revisions", user(handlers.ListRevisions(revisions)))
	r.GET("/api/revisions/eligibility", user(handlers.RevisionEligibility(revisions)))
	r.POST("/api/revisions", user(handlers.CreateRevision(revisions, roadmaps)))
	r.GET("/api/revisions/{id}", user(handlers.GetRevision(revisions)))

	r.GET("/api/admin/revisions", admin(handlers.AdminListRevisions(revisions)))
	r.POST("/api/admin/revisions/sweep", admin(handlers.AdminSweepRevisions(revisions)))
	r.POST("/api/admin/revisions/{id}/respond", admin(handlers.AdminRespondRevision(revisions)))
	r.POST("/api/admin/revisions/{id}/complete", admin(handlers.AdminCompleteRevision(revisions)))
	r.GET("/api/admin/users", admin(handlers.AdminListUsers(conn)))
	r.POST("/api/admin/users/{id}/tier", admin(handlers.AdminSetTier(conn)))

	r.POST("/api/payments/checkout", user(handlers.Checkout(payments)))
	r.GET("/api/payments", user(handlers.ListPayments(payments)))
	r.POST("/v1/payments/webhook", handlers.PaymentWebhook(payments))

	r.GET("/metrics", appmw.BearerToken(cfg.MetricsToken)(handlers.MetricsHandler()))

	// Global middleware chain: request logger, then session loading, then router
	handler := appmw.RequestLogger(appmw.LoadSession(conn, signer)(r.Handler))

	srv := &fasthttp.Server{
		Handler:      handler,
		Name:         "careershift",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("careershift listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	zap.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}

func newLimiter(conn *gorm.DB, cfg *config.Config) (*ratelimit.Limiter, error) {
	switch cfg.RateLimitStore {
	case "", "memory":
		return ratelimit.New(ratelimit.NewMemoryStore()), nil
	case "database":
		return ratelimit.New(db.NewRateLimitStore(conn)), nil
	}
	return nil, fmt.Errorf("unknown APP_RATE_LIMIT_STORE %q (want memory or database)", cfg.RateLimitStore)
}
