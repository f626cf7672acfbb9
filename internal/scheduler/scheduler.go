// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler publishes entries whose scheduled time has passed.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/ocms-content/internal/entry"
	"github.com/olegiv/ocms-content/internal/model"
)

// DefaultSchedule checks for due entries every minute.
const DefaultSchedule = "* * * * *"

// Entries is the part of the entry repository the scheduler needs.
type Entries interface {
	All(ctx context.Context) ([]*model.Entry, error)
	Update(ctx context.Context, collection, slug string, in entry.UpdateInput, publish bool) (*model.Entry, error)
}

// Scheduler handles scheduled publishing.
type Scheduler struct {
	entries  Entries
	cron     *cron.Cron
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new scheduler instance. An empty schedule uses DefaultSchedule.
func New(entries Entries, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		entries:  entries,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins checking for due entries on the configured schedule.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("failed to process scheduled entries", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule, "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Due reports whether e should be published at now: a draft, or a published
// entry with pending edits, whose scheduled time is not in the future.
func Due(e *model.Entry, now time.Time) bool {
	if e.ScheduledAt == nil || e.ScheduledAt.After(now) {
		return false
	}
	return e.Status == model.StatusDraft || e.HasPending()
}

// RunOnce publishes every due entry and returns how many were published.
// A failing entry is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	all, err := s.entries.All(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var due []*model.Entry
	for _, e := range all {
		if Due(e, now) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	s.logger.Info("processing scheduled entries", "count", len(due))

	published := model.StatusPublished
	count := 0
	for _, e := range due {
		_, err := s.entries.Update(ctx, e.Collection, e.Slug, entry.UpdateInput{Status: &published}, true)
		if err != nil {
			s.logger.Error("failed to publish scheduled entry",
				"collection", e.Collection,
				"slug", e.Slug,
				"error", err,
			)
			continue
		}
		count++
		s.logger.Info("published scheduled entry",
			"collection", e.Collection,
			"slug", e.Slug,
			"scheduled_at", e.ScheduledAt.Format(time.RFC3339),
		)
	}
	return count, nil
}
