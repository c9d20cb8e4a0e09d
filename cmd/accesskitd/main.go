// Command accesskitd serves accesskit over HTTP on top of PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fernandezvara/accesskit"
	"github.com/fernandezvara/accesskit/internal/api"
	"github.com/fernandezvara/accesskit/internal/config"
	"github.com/fernandezvara/accesskit/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("accesskitd stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	db, err := dbkit.New(dbkit.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	store := accesskit.NewBunStore(db)
	if err := store.ConfigurePool(accesskit.PoolConfig{
		MaxOpenConnections:    cfg.DBMaxOpenConns,
		MaxIdleConnections:    cfg.DBMaxIdleConns,
		ConnectionMaxLifetime: cfg.DBConnMaxLifetime,
		ConnectionMaxIdleTime: cfg.DBConnMaxIdleTime,
	}); err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}

	if cfg.MigrateOnStart {
		applied, err := store.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("migrations complete")
	}

	cache, closeCache, err := ruleCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := accesskit.NewService(store, accesskit.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL),
		accesskit.WithHasher(accesskit.NewBcryptHasher(cfg.BcryptCost)),
		accesskit.WithRuleCache(cache),
		accesskit.WithLogger(logger.With().Str("component", "accesskit").Logger()),
		accesskit.WithMetrics(accesskit.NewMetrics(registry)),
		accesskit.WithSessionTTL(cfg.SessionTTL),
		accesskit.WithDefaultRole(cfg.DefaultRole),
		accesskit.WithMinPasswordLength(cfg.MinPasswordLength),
	)

	if cfg.BootstrapOnStart {
		res, err := service.EnsureBootstrap(ctx, accesskit.DefaultSeed())
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info().
			Strs("roles", res.RolesCreated).
			Strs("resources", res.ResourcesCreated).
			Strs("rules", res.RulesCreated).
			Msg("bootstrap complete")
	}

	sweeper := accesskit.NewSweeper(service, cfg.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	server := api.NewServer(service, logger, api.Options{
		Production:     cfg.IsProduction(),
		TrustProxy:     cfg.TrustProxy,
		RequestTimeout: cfg.RequestTimeout,
		LoginRateLimit: cfg.LoginRateLimit,
		Gatherer:       registry,
		Metrics:        api.NewMetrics(registry),
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	sweeper.Stop(shutdownCtx)
	return nil
}

// ruleCache returns the Redis cache when ACCESSKIT_REDIS_ADDR is set and an
// in process cache otherwise.
func ruleCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (accesskit.RuleCache, func(), error) {
	if cfg.RedisAddr == "" {
		return accesskit.NewMemoryRuleCache(cfg.CacheTTL), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis rule cache")
	return accesskit.NewRedisRuleCache(client, cfg.CacheTTL), func() { _ = client.Close() }, nil
}
