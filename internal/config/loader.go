package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Env names the loader reads.
const (
	EnvPrefix     = "GAMERADAR_"
	EnvConfigPath = "GAMERADAR_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GAMERADAR_CONFIG is set
//  3. env (prefix GAMERADAR_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// GAMERADAR_QUEUE_SIZE -> queue_size. Underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The config path is a loader input, not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrLoadConfig, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize upper-cases region codes and lower-cases enum values.
func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))

	mults := make(map[string]float64, len(c.RegionalMultipliers))
	for region, m := range c.RegionalMultipliers {
		mults[strings.ToUpper(strings.TrimSpace(region))] = m
	}
	c.RegionalMultipliers = mults

	regions := make([]string, 0, len(c.HighCompetitionRegions))
	for _, r := range c.HighCompetitionRegions {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			regions = append(regions, r)
		}
	}
	c.HighCompetitionRegions = regions
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	positive := []struct {
		name  string
		value int
	}{
		{"queue_size", c.EventQueueSize},
		{"worker_count", c.WorkerCount},
		{"dedupe_size", c.DedupeSize},
		{"fallback_candidate_cap", c.FallbackCandidateCap},
		{"fallback_parallelism", c.FallbackParallelism},
		{"request_timeout_ms", c.RequestTimeoutMS},
		{"default_result_cap", c.DefaultResultCap},
		{"max_result_cap", c.MaxResultCap},
		{"max_leaderboard_limit", c.MaxLeaderboardLimit},
		{"breaker_failure_threshold", c.BreakerFailureThreshold},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.DefaultResultCap > c.MaxResultCap {
		return fmt.Errorf("%w: default_result_cap %d exceeds max_result_cap %d", ErrInvalidConfig, c.DefaultResultCap, c.MaxResultCap)
	}
	if c.IndexProbes < 0 || c.IndexRebuildIntervalS < 0 || c.FullRefreshIntervalS < 0 ||
		c.CacheTTLS < 0 || c.CacheSize < 0 || c.RateLimitPerMinute < 0 || c.BreakerTimeoutS < 0 {
		return fmt.Errorf("%w: intervals, sizes and limits must not be negative", ErrInvalidConfig)
	}
	if c.RefreshRatePerSecond <= 0 || math.IsNaN(c.RefreshRatePerSecond) {
		return fmt.Errorf("%w: refresh_rate_per_second must be positive", ErrInvalidConfig)
	}
	if c.DefaultSimilarityThreshold < -1 || c.DefaultSimilarityThreshold > 1 || math.IsNaN(c.DefaultSimilarityThreshold) {
		return fmt.Errorf("%w: default_similarity_threshold must be within [-1,1]", ErrInvalidConfig)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("%w: badger_path must not be empty for the badger backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}

	switch c.CacheBackend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr must not be empty for the redis cache", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache_backend %q", ErrInvalidConfig, c.CacheBackend)
	}

	for region, m := range c.RegionalMultipliers {
		if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: regional multiplier for %s must be positive", ErrInvalidConfig, region)
		}
	}
	return nil
}
