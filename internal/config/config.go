// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/scheduler"
	"github.com/olegiv/ocms-content/internal/storage/docstore"
)

// Storage backends accepted by OCMS_STORAGE_BACKEND.
const (
	BackendFS       = "fs"
	BackendRemote   = "remote"
	BackendDocstore = "docstore"
	BackendS3       = "s3"
)

// Media record stores accepted by OCMS_MEDIA_STORE.
const (
	MediaStoreFile   = "file"
	MediaStoreRecord = "record"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env      string `env:"OCMS_ENV" envDefault:"development"`
	LogLevel string `env:"OCMS_LOG_LEVEL" envDefault:"info"`

	// Storage backend
	StorageBackend string `env:"OCMS_STORAGE_BACKEND" envDefault:"fs"`
	StorageRoot    string `env:"OCMS_STORAGE_ROOT" envDefault:"./content"`
	MediaBackend   string `env:"OCMS_MEDIA_BACKEND"` // Backend for media bytes; empty uses StorageBackend

	// Remote repository backend
	RemoteAPIURL       string        `env:"OCMS_REMOTE_API_URL" envDefault:"https://api.github.com"`
	RemoteOwner        string        `env:"OCMS_REMOTE_OWNER"`
	RemoteRepo         string        `env:"OCMS_REMOTE_REPO"`
	RemoteBranch       string        `env:"OCMS_REMOTE_BRANCH" envDefault:"main"`
	RemoteToken        string        `env:"OCMS_REMOTE_TOKEN"`
	RemoteRoot         string        `env:"OCMS_REMOTE_ROOT"`                             // Path inside the repository
	RemoteRateLimit    float64       `env:"OCMS_REMOTE_RATE_LIMIT" envDefault:"5"`        // Requests per second, 0 = unlimited
	RemoteTimeout      time.Duration `env:"OCMS_REMOTE_TIMEOUT" envDefault:"30s"`         // Per request
	RemoteAllowPrivate bool          `env:"OCMS_REMOTE_ALLOW_PRIVATE" envDefault:"false"` // Self-hosted API on a private network

	// Document database (docstore backend and record media store)
	DBDriver string `env:"OCMS_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"OCMS_DB_DSN" envDefault:"./data/content.db"`

	// S3-compatible object store
	S3Bucket          string `env:"OCMS_S3_BUCKET"`
	S3Region          string `env:"OCMS_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"OCMS_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"OCMS_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"OCMS_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"OCMS_S3_USE_PATH_STYLE" envDefault:"false"`
	S3Prefix          string `env:"OCMS_S3_PREFIX"`
	S3PublicURL       string `env:"OCMS_S3_PUBLIC_URL"`
	S3CreateBucket    bool   `env:"OCMS_S3_CREATE_BUCKET" envDefault:"false"`

	// Media pipeline
	MediaStore          string  `env:"OCMS_MEDIA_STORE" envDefault:"file"`
	MediaBaseURL        string  `env:"OCMS_MEDIA_BASE_URL" envDefault:"/content"`
	MediaKeepOriginal   bool    `env:"OCMS_MEDIA_KEEP_ORIGINAL" envDefault:"false"`
	MediaPrimaryVariant string  `env:"OCMS_MEDIA_PRIMARY_VARIANT" envDefault:"display"`
	MediaPlaceholder    bool    `env:"OCMS_MEDIA_PLACEHOLDER" envDefault:"true"`
	MediaPosterAt       float64 `env:"OCMS_MEDIA_POSTER_AT" envDefault:"1"`         // Seconds
	MediaMaxUpload      int64   `env:"OCMS_MEDIA_MAX_UPLOAD" envDefault:"20971520"` // Bytes
	FFprobePath         string  `env:"OCMS_FFPROBE_PATH" envDefault:"ffprobe"`
	FFmpegPath          string  `env:"OCMS_FFMPEG_PATH" envDefault:"ffmpeg"`

	// Optional JSON collection schema file
	SchemaFile string `env:"OCMS_SCHEMA_FILE"`

	// Cache configuration
	RedisURL     string `env:"OCMS_REDIS_URL"`                         // Optional Redis URL for distributed caching
	CachePrefix  string `env:"OCMS_CACHE_PREFIX" envDefault:"ocms:"`   // Redis key prefix
	CacheTTL     int    `env:"OCMS_CACHE_TTL" envDefault:"300"`        // Read cache TTL in seconds, 0 disables it
	CacheMaxSize int    `env:"OCMS_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// Scheduled publishing
	Schedule string `env:"OCMS_SCHEDULE" envDefault:"* * * * *"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// CacheEnabled returns true if backend reads go through a cache.
func (c Config) CacheEnabled() bool {
	return c.CacheTTL > 0
}

// CacheDuration returns the cache TTL as a duration.
func (c Config) CacheDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MediaBackendName returns the backend media bytes are stored on.
func (c Config) MediaBackendName() string {
	if c.MediaBackend == "" {
		return c.StorageBackend
	}
	return c.MediaBackend
}

// Backends returns the distinct backends in use.
func (c Config) Backends() []string {
	out := []string{c.StorageBackend}
	if m := c.MediaBackendName(); m != c.StorageBackend {
		out = append(out, m)
	}
	return out
}

// NeedsDB reports whether a document database must be opened.
func (c Config) NeedsDB() bool {
	return slices.Contains(c.Backends(), BackendDocstore) || c.MediaStore == MediaStoreRecord
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values and their combinations.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("OCMS_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}

	for _, b := range c.Backends() {
		errs = append(errs, c.validateBackend(b)...)
	}

	if c.NeedsDB() {
		if _, err := docstore.ParseDialect(c.DBDriver); err != nil {
			errs = append(errs, fmt.Errorf("OCMS_DB_DRIVER: %w", err))
		}
		if c.DBDSN == "" {
			errs = append(errs, errors.New("OCMS_DB_DSN is required"))
		}
	}

	if c.MediaStore != MediaStoreFile && c.MediaStore != MediaStoreRecord {
		errs = append(errs, fmt.Errorf("OCMS_MEDIA_STORE must be file or record, got %q", c.MediaStore))
	}
	if !model.IsVariantName(c.MediaPrimaryVariant) {
		errs = append(errs, fmt.Errorf("OCMS_MEDIA_PRIMARY_VARIANT must be one of %s, got %q",
			strings.Join(model.VariantNames(), ", "), c.MediaPrimaryVariant))
	}
	if c.MediaPosterAt < 0 {
		errs = append(errs, errors.New("OCMS_MEDIA_POSTER_AT must not be negative"))
	}
	if c.MediaMaxUpload <= 0 {
		errs = append(errs, errors.New("OCMS_MEDIA_MAX_UPLOAD must be positive"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("OCMS_CACHE_TTL must not be negative"))
	}
	if err := scheduler.ValidateSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("OCMS_SCHEDULE: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) validateBackend(name string) []error {
	var errs []error
	switch name {
	case BackendFS:
		if c.StorageRoot == "" {
			errs = append(errs, errors.New("OCMS_STORAGE_ROOT is required for the fs backend"))
		}
	case BackendRemote:
		if c.RemoteOwner == "" || c.RemoteRepo == "" {
			errs = append(errs, errors.New("OCMS_REMOTE_OWNER and OCMS_REMOTE_REPO are required for the remote backend"))
		}
		if c.RemoteRateLimit < 0 {
			errs = append(errs, errors.New("OCMS_REMOTE_RATE_LIMIT must not be negative"))
		}
	case BackendDocstore:
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("OCMS_S3_BUCKET is required for the s3 backend"))
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			errs = append(errs, errors.New("OCMS_S3_ACCESS_KEY_ID and OCMS_S3_SECRET_ACCESS_KEY must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend must be fs, remote, docstore or s3, got %q", name))
	}
	return errs
}
