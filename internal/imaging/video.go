// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/olegiv/ocms-content/internal/model"
)

// VideoInfo describes a probed video stream.
type VideoInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds
}

// ProbeVideo reads dimensions and duration with ffprobe. It returns an error
// matching model.ErrUnavailable when ffprobe is not installed.
func (p *Processor) ProbeVideo(ctx context.Context, data []byte) (VideoInfo, error) {
	bin, err := lookPath(p.ffprobe)
	if err != nil {
		return VideoInfo{}, err
	}
	in, cleanup, err := tempInput(data)
	if err != nil {
		return VideoInfo{}, err
	}
	defer cleanup()

	out, err := run(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		in)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("decoding ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}

	info := VideoInfo{Width: probe.Streams[0].Width, Height: probe.Streams[0].Height}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}

// ExtractFrame grabs one JPEG frame at timestamp seconds with ffmpeg. It
// returns an error matching model.ErrUnavailable when ffmpeg is not installed.
func (p *Processor) ExtractFrame(ctx context.Context, data []byte, timestamp float64) ([]byte, error) {
	bin, err := lookPath(p.ffmpeg)
	if err != nil {
		return nil, err
	}
	in, cleanup, err := tempInput(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := run(ctx, bin,
		"-v", "error",
		"-ss", strconv.FormatFloat(max(0, timestamp), 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", timestamp)
	}
	return out, nil
}

func lookPath(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s: %w", bin, model.ErrUnavailable)
	}
	return path, nil
}

// tempInput writes data to a temp file; ffprobe needs a seekable input for
// containers with the index at the end.
func tempInput(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "ocms-video-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp file: %w", err)
	}
	return name, cleanup, nil
}

func run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
