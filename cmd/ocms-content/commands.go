// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olegiv/ocms-content/internal/app"
	"github.com/olegiv/ocms-content/internal/entry"
	"github.com/olegiv/ocms-content/internal/media"
	"github.com/olegiv/ocms-content/internal/model"
)

// cli runs subcommands against an opened application.
type cli struct {
	app *app.App
	out io.Writer
}

type command struct {
	name string
	args string
	help string
	run  func(c *cli, ctx context.Context, args []string) error
}

var commands = []command{
	{"collections", "", "List known collections", (*cli).collections},
	{"entries", "[-status s] [-limit n] <collection>", "List entries of a collection", (*cli).entries},
	{"publish", "<collection> <slug>", "Publish an entry, committing pending edits", (*cli).publish},
	{"unpublish", "<collection> <slug>", "Return a published entry to draft", (*cli).unpublish},
	{"upload", "[-title t] [-alt a] <file>", "Upload a media file", (*cli).upload},
	{"media", "", "List media assets", (*cli).media},
	{"delete-media", "<id>", "Delete a media asset and strip references", (*cli).deleteMedia},
	{"replace-media", "<id> <file>", "Replace a media asset everywhere it is used", (*cli).replaceMedia},
	{"publish-due", "", "Publish scheduled entries that are due", (*cli).publishDue},
	{"scheduler", "", "Run scheduled publishing until interrupted", (*cli).scheduler},
}

var errUsage = errors.New("usage")

func dispatch(ctx context.Context, c *cli, args []string) error {
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		err := cmd.run(c, ctx, args[1:])
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: %s %s", cmd.name, cmd.args)
		}
		return err
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *cli) collections(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	names, err := c.app.Entries.Collections(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(c.out, n)
	}
	return nil
}

func (c *cli) entries(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("entries", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	status := fs.String("status", "", "Filter by status")
	limit := fs.Int("limit", 0, "Maximum entries")
	sort := fs.String("sort", "", "Sort field")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	res, err := c.app.Entries.List(ctx, fs.Arg(0), entry.ListOptions{
		Status:    model.Status(*status),
		SortField: *sort,
		Limit:     *limit,
	})
	if err != nil {
		return err
	}

	w := c.table()
	_, _ = fmt.Fprintln(w, "SLUG\tSTATUS\tPENDING\tUPDATED\tSCHEDULED")
	for _, e := range res.Entries {
		scheduled := "-"
		if e.ScheduledAt != nil {
			scheduled = e.ScheduledAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			e.Slug, e.Status, e.HasPending(), e.UpdatedAt.Format(time.RFC3339), scheduled)
	}
	_, _ = fmt.Fprintf(w, "\n%d of %d\n", len(res.Entries), res.Total)
	return w.Flush()
}

func (c *cli) publish(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	e, err := c.app.Entries.Update(ctx, args[0], args[1], entry.UpdateInput{}, true)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "published %s/%s\n", e.Collection, e.Slug)
	return nil
}

func (c *cli) unpublish(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	draft := model.StatusDraft
	e, err := c.app.Entries.Update(ctx, args[0], args[1], entry.UpdateInput{Status: &draft}, false)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "unpublished %s/%s\n", e.Collection, e.Slug)
	return nil
}

func readUpload(path string) (media.UploadInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return media.UploadInput{}, err
	}
	in := media.UploadInput{Data: data, OriginalName: filepath.Base(path)}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		in.Mime, _, _ = strings.Cut(t, ";")
	}
	return in, nil
}

func (c *cli) printAsset(a *model.MediaAsset, degraded []*model.ProcessingError) {
	_, _ = fmt.Fprintf(c.out, "id:    %s\nurl:   %s\nmime:  %s\nsize:  %d\n", a.ID, a.URL, a.Mime, a.Size)
	if a.Width > 0 {
		_, _ = fmt.Fprintf(c.out, "dims:  %dx%d\n", a.Width, a.Height)
	}
	for _, pe := range degraded {
		_, _ = fmt.Fprintf(c.out, "warn:  %v\n", pe)
	}
}

func (c *cli) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	title := fs.String("title", "", "Asset title")
	alt := fs.String("alt", "", "Alternative text")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	in, err := readUpload(fs.Arg(0))
	if err != nil {
		return err
	}
	in.Title, in.Alt = *title, *alt

	res, err := c.app.Media.Upload(ctx, in)
	if err != nil {
		return err
	}
	c.printAsset(res.Asset, res.Degraded)
	return nil
}

func (c *cli) media(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	assets, err := c.app.Media.List(ctx)
	if err != nil {
		return err
	}
	w := c.table()
	_, _ = fmt.Fprintln(w, "ID\tMIME\tVARIANT\tSIZE\tNAME")
	for _, a := range assets {
		variant := a.ActiveVariant
		if variant == "" {
			variant = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.Mime, variant, a.Size, a.OriginalName)
	}
	return w.Flush()
}

func (c *cli) deleteMedia(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	res, err := c.app.Media.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "deleted %s, updated %d entries\n", args[0], res.UpdatedEntries)
	return nil
}

func (c *cli) replaceMedia(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	in, err := readUpload(args[1])
	if err != nil {
		return err
	}
	res, err := c.app.Media.Replace(ctx, args[0], in)
	if err != nil {
		return err
	}
	c.printAsset(res.Asset, res.Degraded)
	_, _ = fmt.Fprintf(c.out, "replaced %s, updated %d entries\n", args[0], res.UpdatedEntries)
	return nil
}

func (c *cli) publishDue(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	n, err := c.app.Scheduler().RunOnce(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "published %d entries\n", n)
	return nil
}

func (c *cli) scheduler(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	s := c.app.Scheduler()
	if err := s.Start(); err != nil {
		return err
	}
	slog.Info("scheduler running", "schedule", c.app.Config.Schedule)
	<-ctx.Done()
	slog.Info("shutting down scheduler")
	s.Stop()
	return nil
}
