package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deploytrack/deploytrack/internal/app/migrate"
	"github.com/deploytrack/deploytrack/internal/cache"
	httpx "github.com/deploytrack/deploytrack/internal/http"
	"github.com/deploytrack/deploytrack/internal/repository/postgres"
	"github.com/deploytrack/deploytrack/internal/service/github"
	"github.com/deploytrack/deploytrack/internal/service/stats"
	"github.com/deploytrack/deploytrack/internal/service/track"
	"github.com/deploytrack/deploytrack/internal/service/usage"
	"github.com/deploytrack/deploytrack/internal/ws"
	"github.com/deploytrack/deploytrack/pkg/config"
	"github.com/deploytrack/deploytrack/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	store := cache.NewNoop()
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		redisStore, err := cache.NewRedis(addr, cfg.CacheRedisPass, cfg.CacheRedisDB, log)
		if err != nil {
			log.Warn("redis cache unavailable, stats served uncached", "error", err)
		} else {
			store = redisStore
		}
	}
	defer store.Close()

	repo := postgres.New(pool, cfg.StatsWindowDays)
	hub := ws.NewHub(cfg.EventFeedBuffer)

	var analytics track.AnalyticsEmitter
	if emitter := track.NewAnalytics(cfg.AnalyticsURL, cfg.AnalyticsWriteKey, nil); emitter != nil {
		analytics = emitter
	}

	enricher := github.New(cfg.GithubStatsURL, cfg.GithubStatsAPIKey, store, cfg.GithubStatsTTL, nil, log)
	catalog := stats.NewFileCatalog(cfg.ActiveServicesPath)

	trackSvc := track.New(repo, analytics, hub, log, cfg)
	statsSvc := stats.New(repo, store, catalog, enricher, log, cfg)
	usageSvc := usage.New(repo, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	opts := httpx.Options{
		APIKey:  cfg.APIKey,
		DevMode: cfg.Environment == "development",
		BaseURL: cfg.BaseURL,
	}
	router := httpx.NewRouter(log, trackSvc, statsSvc, usageSvc, enricher, hub, limiter, opts, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
