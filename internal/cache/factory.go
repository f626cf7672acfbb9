package cache

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Backend types accepted by Config.Type.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Config holds configuration for cache creation.
type Config struct {
	// Type is the cache backend type: "memory" or "redis"
	Type string

	// RedisURL is the Redis connection URL (only for redis type)
	// Example: redis://localhost:6379/0
	RedisURL string

	// Prefix is the key prefix for Redis (only for redis type)
	Prefix string

	// DefaultTTL is the default TTL for cache entries
	DefaultTTL time.Duration

	// MaxSize is the maximum number of entries for memory cache (0 = unlimited)
	MaxSize int

	// CleanupInterval is the interval for expired entry cleanup
	CleanupInterval time.Duration

	// FallbackToMemory uses a memory cache when Redis cannot be reached.
	FallbackToMemory bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		DefaultTTL:       5 * time.Minute,
		MaxSize:          10000,
		CleanupInterval:  time.Minute,
		FallbackToMemory: true,
	}
}

// New creates a cache based on the provided configuration. The bool result is
// true when a Redis cache was requested but a memory fallback was returned.
func New(cfg Config, logger *slog.Logger) (Cache, bool, error) {
	if cfg.Type == TypeRedis {
		rc, err := NewRedisCache(RedisCacheOptions{URL: cfg.RedisURL, Prefix: cfg.Prefix, DefaultTTL: cfg.DefaultTTL})
		if err == nil {
			return rc, false, nil
		}
		if !cfg.FallbackToMemory {
			return nil, false, fmt.Errorf("creating redis cache: %w", err)
		}
		if logger != nil {
			logger.Warn("redis cache unavailable, using memory cache",
				"url", SanitizeRedisURL(cfg.RedisURL), "error", err)
		}
		return newMemory(cfg), true, nil
	}

	return newMemory(cfg), false, nil
}

func newMemory(cfg Config) *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	})
}

// SanitizeRedisURL masks the password in a Redis URL for logging.
func SanitizeRedisURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
