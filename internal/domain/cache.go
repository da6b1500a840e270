package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetScore retrieves a cached score for a record hash.
	GetScore(ctx context.Context, tenantID string, recordHash string) (*CachedScore, error)

	// SetScore caches a score keyed by record hash, so identical
	// records served to the same model version skip re-scoring.
	SetScore(ctx context.Context, tenantID string, recordHash string, score *CachedScore, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for windowed prediction-volume stats.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CachedScore is the cached result of scoring one record.
type CachedScore struct {
	Risk         int     `json:"risk"`
	Probability  float64 `json:"prob"`
	ModelVersion string  `json:"modelVersion"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
