// SPDX-License-Identifier: MIT

// Package config loads playcore configuration from an optional YAML file
// overlaid by PLAYCORE_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	// CatalogPath points at the JSON catalog file served to viewers.
	CatalogPath string `yaml:"catalog_path"`

	// PlatformPayee receives payouts for content without an explicit
	// payout recipient.
	PlatformPayee string `yaml:"platform_payee"`

	Ad        AdConfig        `yaml:"ad"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Cache     CacheConfig     `yaml:"cache"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig points at the media storage origin. When SigningSecret is
// set, resolved URLs carry an expiring HMAC signature.
type StorageConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SigningSecret string        `yaml:"signing_secret"`
	URLTTL        time.Duration `yaml:"url_ttl"`
}

// AdConfig controls the pre-roll ad break.
type AdConfig struct {
	TotalSeconds     int `yaml:"total_seconds"`
	SkippableSeconds int `yaml:"skippable_seconds"`
}

// LedgerConfig controls the transaction ledger and its dead-letter store.
type LedgerConfig struct {
	Path           string        `yaml:"path"`
	DeadLetterPath string        `yaml:"dead_letter_path"`
	AppendRetries  int           `yaml:"append_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// CacheConfig selects the resolver cache backend.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis | none
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// ResolverConfig bounds calls to the storage collaborator.
type ResolverConfig struct {
	MintRatePerSec float64 `yaml:"mint_rate_per_sec"`
	MintBurst      int     `yaml:"mint_burst"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	RateLimitPerMin int  `yaml:"rate_limit_per_min"`
	EnableMetrics   bool `yaml:"enable_metrics"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:        ":8080",
		DataDir:       "./data",
		LogLevel:      "info",
		CatalogPath:   "./data/catalog.json",
		PlatformPayee: "platform@typhoonhub.ca",
		Ad: AdConfig{
			TotalSeconds:     5,
			SkippableSeconds: 5,
		},
		Ledger: LedgerConfig{
			Path:           "./data/ledger.db",
			DeadLetterPath: "./data/deadletters",
			AppendRetries:  3,
			RetryBackoff:   500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     15 * time.Minute,
		},
		Resolver: ResolverConfig{
			MintRatePerSec: 10,
			MintBurst:      20,
		},
		Storage: StorageConfig{
			BaseURL: "http://localhost:9000/media",
			URLTTL:  15 * time.Minute,
		},
		API: APIConfig{
			RateLimitPerMin: 120,
			EnableMetrics:   true,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 0.1,
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeEnv(cfg *Config) {
	cfg.Listen = ParseString("PLAYCORE_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("PLAYCORE_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString("PLAYCORE_LOG_LEVEL", cfg.LogLevel)
	cfg.CatalogPath = ParseString("PLAYCORE_CATALOG_PATH", cfg.CatalogPath)
	cfg.PlatformPayee = ParseString("PLAYCORE_PLATFORM_PAYEE", cfg.PlatformPayee)

	cfg.Ad.TotalSeconds = ParseInt("PLAYCORE_AD_TOTAL_SECONDS", cfg.Ad.TotalSeconds)
	cfg.Ad.SkippableSeconds = ParseInt("PLAYCORE_AD_SKIPPABLE_SECONDS", cfg.Ad.SkippableSeconds)

	cfg.Ledger.Path = ParseString("PLAYCORE_LEDGER_PATH", cfg.Ledger.Path)
	cfg.Ledger.DeadLetterPath = ParseString("PLAYCORE_LEDGER_DEADLETTER_PATH", cfg.Ledger.DeadLetterPath)
	cfg.Ledger.AppendRetries = ParseInt("PLAYCORE_LEDGER_APPEND_RETRIES", cfg.Ledger.AppendRetries)
	cfg.Ledger.RetryBackoff = ParseDuration("PLAYCORE_LEDGER_RETRY_BACKOFF", cfg.Ledger.RetryBackoff)

	cfg.Cache.Backend = ParseString("PLAYCORE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = ParseDuration("PLAYCORE_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = ParseString("PLAYCORE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("PLAYCORE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("PLAYCORE_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Resolver.MintRatePerSec = ParseFloat("PLAYCORE_MINT_RATE_PER_SEC", cfg.Resolver.MintRatePerSec)
	cfg.Resolver.MintBurst = ParseInt("PLAYCORE_MINT_BURST", cfg.Resolver.MintBurst)

	cfg.Storage.BaseURL = ParseString("PLAYCORE_STORAGE_BASE_URL", cfg.Storage.BaseURL)
	cfg.Storage.SigningSecret = ParseString("PLAYCORE_STORAGE_SIGNING_SECRET", cfg.Storage.SigningSecret)
	cfg.Storage.URLTTL = ParseDuration("PLAYCORE_STORAGE_URL_TTL", cfg.Storage.URLTTL)

	cfg.API.RateLimitPerMin = ParseInt("PLAYCORE_API_RATE_LIMIT_PER_MIN", cfg.API.RateLimitPerMin)
	cfg.API.EnableMetrics = ParseBool("PLAYCORE_API_ENABLE_METRICS", cfg.API.EnableMetrics)

	cfg.Telemetry.Enabled = ParseBool("PLAYCORE_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString("PLAYCORE_TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString("PLAYCORE_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("PLAYCORE_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.Ad.TotalSeconds < 0 {
		return fmt.Errorf("config: ad total_seconds must be >= 0, got %d", c.Ad.TotalSeconds)
	}
	if c.Ad.SkippableSeconds < 0 {
		return fmt.Errorf("config: ad skippable_seconds must be >= 0, got %d", c.Ad.SkippableSeconds)
	}
	if c.Ledger.AppendRetries < 1 {
		return fmt.Errorf("config: ledger append_retries must be >= 1, got %d", c.Ledger.AppendRetries)
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("config: redis cache backend requires redis_addr")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q (memory|redis|none)", c.Cache.Backend)
	}
	if c.Storage.BaseURL == "" {
		return fmt.Errorf("config: storage base_url must not be empty")
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.ExporterType {
		case "grpc", "http":
		default:
			return fmt.Errorf("config: unknown telemetry exporter %q (grpc|http)", c.Telemetry.ExporterType)
		}
	}
	return nil
}
