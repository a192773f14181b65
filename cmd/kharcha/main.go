package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kharcha/internal/auth"
	"kharcha/internal/cache"
	"kharcha/internal/cli"
	"kharcha/internal/config"
	apphttp "kharcha/internal/http"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(log.New(log.DefaultConfig()), (*config.Config).Validate)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	result := cli.OpenBackend(ctx, logger, cfg)

	var publisher services.EventPublisher
	if result.Publisher != nil {
		publisher = result.Publisher
	}

	m := metrics.New()
	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	identity := auth.NewIdentity(result.Store)
	identity.OnAuthStateChange(services.NewProvisioner(result.Store, services.LoadDefaults(cfg.SeedDir)).Listen)
	passwords := auth.NewPasswordAuthenticator(result.Store)

	summary := services.NewSummaryService(result.Store, cfg.CacheSize, cfg.CacheTTL, m)
	taxonomy := services.NewTaxonomyService(result.Store, summary)
	records := services.NewRecordService(result.Store, publisher, summary, m)
	summary.UseCarryover(services.NewCarryoverService(result.Store, taxonomy, publisher, summary, m))

	caches := cache.NewManager()
	summary.Register(caches)
	caches.Register("token_revocations", cache.CleanerFunc(func() int {
		return tokens.Revocations().CleanExpired(time.Now())
	}))
	caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:     services.NewAuthService(passwords, tokens, identity),
		Tokens:   tokens,
		Taxonomy: taxonomy,
		Records:  records,
		Summary:  summary,
		Backend:  result.Store,
		Metrics:  m,
	}, apphttp.Options{
		CORSOrigins:        cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if err := result.Cleanup(); err != nil {
			logger.ErrorContext(ctx, "Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting kharcha server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"record_events", result.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
