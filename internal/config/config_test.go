// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.StorageBackend != BackendFS {
		t.Errorf("StorageBackend = %q, want %q", cfg.StorageBackend, BackendFS)
	}
	if cfg.StorageRoot != "./content" {
		t.Errorf("StorageRoot = %q, want %q", cfg.StorageRoot, "./content")
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.MediaStore != MediaStoreFile {
		t.Errorf("MediaStore = %q, want %q", cfg.MediaStore, MediaStoreFile)
	}
	if cfg.MediaPrimaryVariant != "display" {
		t.Errorf("MediaPrimaryVariant = %q, want %q", cfg.MediaPrimaryVariant, "display")
	}
	if cfg.MediaMaxUpload != 20*1024*1024 {
		t.Errorf("MediaMaxUpload = %d, want %d", cfg.MediaMaxUpload, 20*1024*1024)
	}
	if cfg.RemoteTimeout != 30*time.Second {
		t.Errorf("RemoteTimeout = %v, want %v", cfg.RemoteTimeout, 30*time.Second)
	}
	if !cfg.MediaPlaceholder {
		t.Error("MediaPlaceholder should default to true")
	}
	if !cfg.CacheEnabled() || cfg.CacheDuration() != 5*time.Minute {
		t.Errorf("cache enabled = %v, ttl = %v", cfg.CacheEnabled(), cfg.CacheDuration())
	}
	if cfg.UseRedisCache() {
		t.Error("UseRedisCache() should be false without OCMS_REDIS_URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	setEnv(t, "OCMS_ENV", "production")
	setEnv(t, "OCMS_LOG_LEVEL", "debug")
	setEnv(t, "OCMS_STORAGE_BACKEND", "remote")
	setEnv(t, "OCMS_REMOTE_OWNER", "acme")
	setEnv(t, "OCMS_REMOTE_REPO", "site")
	setEnv(t, "OCMS_REMOTE_TIMEOUT", "5s")
	setEnv(t, "OCMS_REMOTE_RATE_LIMIT", "2.5")
	setEnv(t, "OCMS_MEDIA_KEEP_ORIGINAL", "true")
	setEnv(t, "OCMS_MEDIA_PRIMARY_VARIANT", "medium")
	setEnv(t, "OCMS_CACHE_TTL", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.StorageBackend != BackendRemote {
		t.Errorf("StorageBackend = %q, want %q", cfg.StorageBackend, BackendRemote)
	}
	if cfg.RemoteOwner != "acme" || cfg.RemoteRepo != "site" {
		t.Errorf("remote = %s/%s, want acme/site", cfg.RemoteOwner, cfg.RemoteRepo)
	}
	if cfg.RemoteTimeout != 5*time.Second {
		t.Errorf("RemoteTimeout = %v, want 5s", cfg.RemoteTimeout)
	}
	if cfg.RemoteRateLimit != 2.5 {
		t.Errorf("RemoteRateLimit = %v, want 2.5", cfg.RemoteRateLimit)
	}
	if !cfg.MediaKeepOriginal {
		t.Error("MediaKeepOriginal should be true")
	}
	if cfg.MediaPrimaryVariant != "medium" {
		t.Errorf("MediaPrimaryVariant = %q, want medium", cfg.MediaPrimaryVariant)
	}
	if cfg.CacheEnabled() {
		t.Error("CacheEnabled() should be false with OCMS_CACHE_TTL=0")
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() should be false in production")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoad_InvalidCombinations(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"unknown backend", map[string]string{"OCMS_STORAGE_BACKEND": "ftp"}, "must be fs, remote, docstore or s3"},
		{"unknown media backend", map[string]string{"OCMS_MEDIA_BACKEND": "tape"}, "\"tape\""},
		{"media on s3 without bucket", map[string]string{"OCMS_MEDIA_BACKEND": "s3"}, "OCMS_S3_BUCKET"},
		{"remote without repo", map[string]string{"OCMS_STORAGE_BACKEND": "remote", "OCMS_REMOTE_OWNER": "acme"}, "OCMS_REMOTE_REPO"},
		{"s3 without bucket", map[string]string{"OCMS_STORAGE_BACKEND": "s3"}, "OCMS_S3_BUCKET"},
		{"s3 half credentials", map[string]string{"OCMS_STORAGE_BACKEND": "s3", "OCMS_S3_BUCKET": "b", "OCMS_S3_ACCESS_KEY_ID": "k"}, "must be set together"},
		{"docstore bad driver", map[string]string{"OCMS_STORAGE_BACKEND": "docstore", "OCMS_DB_DRIVER": "oracle"}, "OCMS_DB_DRIVER"},
		{"record store bad driver", map[string]string{"OCMS_MEDIA_STORE": "record", "OCMS_DB_DRIVER": "mongo"}, "OCMS_DB_DRIVER"},
		{"bad media store", map[string]string{"OCMS_MEDIA_STORE": "cloud"}, "OCMS_MEDIA_STORE"},
		{"bad primary variant", map[string]string{"OCMS_MEDIA_PRIMARY_VARIANT": "huge"}, "OCMS_MEDIA_PRIMARY_VARIANT"},
		{"negative poster", map[string]string{"OCMS_MEDIA_POSTER_AT": "-1"}, "OCMS_MEDIA_POSTER_AT"},
		{"bad schedule", map[string]string{"OCMS_SCHEDULE": "whenever"}, "OCMS_SCHEDULE"},
		{"bad log level", map[string]string{"OCMS_LOG_LEVEL": "loud"}, "OCMS_LOG_LEVEL"},
		{"bad duration", map[string]string{"OCMS_REMOTE_TIMEOUT": "soon"}, "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				setEnv(t, k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Load() error = %q, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestConfig_Backends(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		backends []string
		needsDB  bool
	}{
		{"fs only", Config{StorageBackend: "fs", MediaStore: "file"}, []string{"fs"}, false},
		{"same media backend", Config{StorageBackend: "fs", MediaBackend: "fs", MediaStore: "file"}, []string{"fs"}, false},
		{"media on s3", Config{StorageBackend: "remote", MediaBackend: "s3", MediaStore: "file"}, []string{"remote", "s3"}, false},
		{"docstore", Config{StorageBackend: "docstore", MediaStore: "file"}, []string{"docstore"}, true},
		{"record store", Config{StorageBackend: "fs", MediaStore: "record"}, []string{"fs"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.Backends()
			if strings.Join(got, ",") != strings.Join(tt.backends, ",") {
				t.Errorf("Backends() = %v, want %v", got, tt.backends)
			}
			if tt.cfg.NeedsDB() != tt.needsDB {
				t.Errorf("NeedsDB() = %v, want %v", tt.cfg.NeedsDB(), tt.needsDB)
			}
		})
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}
