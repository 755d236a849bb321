// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and GAMERADAR_* env vars over those defaults.
// - Validation failures wrap ErrInvalidConfig; provider failures wrap ErrLoadConfig.
package config

import (
	"runtime"
	"time"
)

// Storage and cache backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory recomputation queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recomputation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the change-notification dedupe window.
	DedupeSize int `koanf:"dedupe_size"`

	// StorageBackend selects the AnalyticsStore: memory or badger.
	StorageBackend string `koanf:"storage_backend"`

	// BadgerPath is the badger data directory when StorageBackend is badger.
	BadgerPath string `koanf:"badger_path"`

	IndexRebuildIntervalS int     `koanf:"index_rebuild_interval_s"`
	FullRefreshIntervalS  int     `koanf:"full_refresh_interval_s"`
	RefreshRatePerSecond  float64 `koanf:"refresh_rate_per_second"`

	// IndexProbes is the number of clusters probed per query; 0 derives it from k.
	IndexProbes int `koanf:"index_probes"`

	// FallbackCandidateCap bounds the candidate pool of the exact fallback scan.
	FallbackCandidateCap int `koanf:"fallback_candidate_cap"`
	FallbackParallelism  int `koanf:"fallback_parallelism"`

	// RequestTimeoutMS applies to recommendation requests without a deadline.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	DefaultResultCap           int     `koanf:"default_result_cap"`
	MaxResultCap               int     `koanf:"max_result_cap"`
	DefaultSimilarityThreshold float64 `koanf:"default_similarity_threshold"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// CacheBackend selects the recommendation response cache: none, memory or redis.
	CacheBackend string `koanf:"cache_backend"`
	CacheTTLS    int    `koanf:"cache_ttl_s"`
	CacheSize    int    `koanf:"cache_size"`
	RedisAddr    string `koanf:"redis_addr"`

	// RateLimitPerMinute is the per-IP HTTP request budget; 0 disables limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutS         int `koanf:"breaker_timeout_s"`

	// RegionalMultipliers maps region codes to score multipliers.
	RegionalMultipliers map[string]float64 `koanf:"regional_multipliers"`

	// HighCompetitionRegions use the KDA-heavy weight profile.
	HighCompetitionRegions []string `koanf:"high_competition_regions"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                   "info",
		Addr:                       ":9080",
		EventQueueSize:             100_000,
		WorkerCount:                runtime.NumCPU() * 4,
		DedupeSize:                 100_000,
		StorageBackend:             BackendMemory,
		BadgerPath:                 "data/badger",
		IndexRebuildIntervalS:      60,
		FullRefreshIntervalS:       86_400,
		RefreshRatePerSecond:       500,
		IndexProbes:                0,
		FallbackCandidateCap:       5_000,
		FallbackParallelism:        runtime.NumCPU(),
		RequestTimeoutMS:           2_000,
		DefaultResultCap:           10,
		MaxResultCap:               50,
		DefaultSimilarityThreshold: 0.7,
		MaxLeaderboardLimit:        100,
		CacheBackend:               BackendMemory,
		CacheTTLS:                  30,
		CacheSize:                  10_000,
		RedisAddr:                  "localhost:6379",
		RateLimitPerMinute:         600,
		BreakerFailureThreshold:    3,
		BreakerTimeoutS:            30,
		RegionalMultipliers: map[string]float64{
			"KR": 1.20,
			"CN": 1.15,
			"JP": 1.10,
		},
		HighCompetitionRegions: []string{"KR", "CN", "JP"},
	}
}

// RequestTimeout returns the default recommendation deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// IndexRebuildInterval returns the periodic index rebuild interval.
func (c *Config) IndexRebuildInterval() time.Duration {
	return time.Duration(c.IndexRebuildIntervalS) * time.Second
}

// FullRefreshInterval returns the periodic full refresh interval.
func (c *Config) FullRefreshInterval() time.Duration {
	return time.Duration(c.FullRefreshIntervalS) * time.Second
}

// CacheTTL returns the response cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLS) * time.Second
}

// BreakerTimeout returns how long the index breaker stays open.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutS) * time.Second
}
