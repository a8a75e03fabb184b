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

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factorybrain/api/internal/app/migrate"
	httpx "github.com/factorybrain/api/internal/http"
	"github.com/factorybrain/api/internal/oracle"
	"github.com/factorybrain/api/internal/repository/postgres"
	"github.com/factorybrain/api/internal/service/prediction"
	"github.com/factorybrain/api/internal/service/stats"
	"github.com/factorybrain/api/internal/ws"
	"github.com/factorybrain/api/pkg/config"
	"github.com/factorybrain/api/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := logger.New("api", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseURL()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	if cfg.DBPoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.DBPoolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, dsn, cfg.MigrationsDir, log)
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

	repo := postgres.New(pool)
	oracleClient := oracle.NewClient(cfg.OracleURL, cfg.OracleTimeout, log)
	feed := ws.NewHub()

	predictionSvc := prediction.New(repo, oracleClient, feed, log, cfg.RecordWriteTimeout)
	statsSvc := stats.New(repo, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, predictionSvc, statsSvc, feed, limiter, pool.Ping, oracleClient.Healthy)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "oracle", cfg.OracleURL)
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
