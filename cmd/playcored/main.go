// SPDX-License-Identifier: MIT

// Command playcored runs the TyphoonHub playback core daemon: catalog,
// monetization gate, transaction ledger and the playback session API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/typhoonhub/playcore/internal/api"
	"github.com/typhoonhub/playcore/internal/assets"
	"github.com/typhoonhub/playcore/internal/cache"
	"github.com/typhoonhub/playcore/internal/config"
	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/session"
	"github.com/typhoonhub/playcore/internal/telemetry"
	"github.com/typhoonhub/playcore/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "playcored: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "playcore"})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("daemon stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "playcore",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	ledgerStore, err := ledger.NewSqliteStore(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := ledgerStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("ledger close failed")
		}
	}()

	dlq, err := ledger.OpenDeadLetterStore(cfg.Ledger.DeadLetterPath)
	if err != nil {
		return fmt.Errorf("open dead-letter store: %w", err)
	}
	defer func() {
		if err := dlq.Close(); err != nil {
			logger.Warn().Err(err).Msg("dead-letter store close failed")
		}
	}()

	catalog, err := content.NewFileStore(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := catalog.Watch(); err != nil {
		logger.Warn().Err(err).Msg("catalog watch unavailable, hot reload disabled")
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Warn().Err(err).Msg("catalog close failed")
		}
	}()

	minter, err := newMinter(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init url minter: %w", err)
	}

	resolver := assets.NewResolver(minter, assets.Options{
		Cache:          newResolverCache(cfg.Cache, logger),
		CacheTTL:       cfg.Cache.TTL,
		MintRatePerSec: cfg.Resolver.MintRatePerSec,
		MintBurst:      cfg.Resolver.MintBurst,
	})

	recorder := ledger.NewRecorder(ledgerStore, dlq, cfg.Ledger.AppendRetries, cfg.Ledger.RetryBackoff)

	registry := session.NewRegistry(session.RegistryOptions{
		Resolver:      resolver,
		Recorder:      recorder,
		PlatformPayee: cfg.PlatformPayee,
		Ad: session.AdConfig{
			TotalSeconds:          cfg.Ad.TotalSeconds,
			SkippableAfterSeconds: cfg.Ad.SkippableSeconds,
		},
	})
	defer registry.CloseAll()

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = "playcore-api"
	}
	server := api.NewServer(registry, catalog, ledgerStore, dlq, api.Options{
		RateLimitPerMin: cfg.API.RateLimitPerMin,
		EnableMetrics:   cfg.API.EnableMetrics,
		TracingService:  tracingService,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("listen", cfg.Listen).Str("version", version.Version).Msg("http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newMinter(cfg config.StorageConfig) (assets.URLMinter, error) {
	if cfg.SigningSecret != "" {
		return assets.NewSignedURLMinter(cfg.BaseURL, cfg.SigningSecret, cfg.URLTTL)
	}
	return assets.NewPublicURLMinter(cfg.BaseURL)
}

// newResolverCache selects the cache backend; a failed redis connection
// degrades to the in-process cache so the daemon still starts.
func newResolverCache(cfg config.CacheConfig, logger zerolog.Logger) cache.Cache {
	switch cfg.Backend {
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log.WithComponent("cache"))
		if err == nil {
			return c
		}
		logger.Warn().Err(err).Msg("redis cache unavailable, falling back to memory cache")
		return cache.NewMemoryCache(time.Minute)
	case "none":
		return cache.NewNoOpCache()
	default:
		return cache.NewMemoryCache(time.Minute)
	}
}
