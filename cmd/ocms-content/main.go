// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/olegiv/ocms-content/internal/app"
	"github.com/olegiv/ocms-content/internal/config"
	"github.com/olegiv/ocms-content/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "ocms-content - content repository for oCMS\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Commands:\n")
		for _, c := range commands {
			_, _ = fmt.Fprintf(os.Stderr, "  %-34s %s\n", c.name+" "+c.args, c.help)
		}
		_, _ = fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_STORAGE_BACKEND   fs|remote|docstore|s3 (default: fs)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_STORAGE_ROOT      Content directory for the fs backend (default: ./content)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_MEDIA_BACKEND     Separate backend for media bytes (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_REMOTE_OWNER      Repository owner for the remote backend\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_REMOTE_REPO       Repository name for the remote backend\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_REMOTE_TOKEN      API token for the remote backend\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_DB_DRIVER         sqlite|mysql|postgres (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_DB_DSN            Document database DSN (default: ./data/content.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_S3_BUCKET         Bucket for the s3 backend\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_MEDIA_STORE       file|record (default: file)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_SCHEMA_FILE       JSON collection schemas (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_REDIS_URL         Redis URL for the read cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OCMS_SCHEDULE          Cron expression for scheduled publishing (default: * * * * *)\n")
		_, _ = fmt.Fprintf(os.Stderr, "\nFor more information, see: https://github.com/olegiv/ocms-go\n")
	}

	flag.Parse()

	// Handle -h/-help flag
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	// Handle -v/-version flag
	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		_, _ = fmt.Printf("ocms-content %s\n", info)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Args()); err != nil {
		slog.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening content repository: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("error closing content repository", "error", err)
		}
	}()

	return dispatch(ctx, &cli{app: a, out: os.Stdout}, args)
}
