// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package remote implements storage.Backend on top of a version-controlled
// repository reached through a GitHub-compatible contents API. Every write and
// delete is a commit; each file carries a SHA that the API requires on update.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
	"github.com/olegiv/ocms-content/internal/util"
)

// Defaults
const (
	DefaultAPIURL  = "https://api.github.com"
	DefaultBranch  = "main"
	DefaultTimeout = 30 * time.Second
	UserAgent      = "ocms-content/1.0"

	// maxResponseLen caps error bodies kept for messages.
	maxResponseLen = 4096
)

// Config options for the remote backend.
type Config struct {
	APIURL       string        // API base URL
	Owner        string        // Repository owner
	Repo         string        // Repository name
	Branch       string        // Branch commits go to
	Token        string        // Bearer token
	Root         string        // Optional directory inside the repository
	RateLimit    float64       // Requests per second; 0 disables limiting
	Timeout      time.Duration // Per-request timeout
	AllowPrivate bool          // Permit loopback/private API hosts (self-hosted, tests)
	HTTPClient   *http.Client  // Overrides the default client
	Logger       *slog.Logger
}

// Backend talks to the contents API.
//
// Writes to the same key from this process are serialized. Callers that read
// with ReadRevision and pass the token back through storage.WithRevision get
// model.ErrConflict when another writer got there first; callers that do not
// fall back to fetching the current token just before the write, which can
// still lose updates made by other processes in between.
type Backend struct {
	cfg     Config
	base    string
	client  *http.Client
	limiter *rate.Limiter
	locks   *keyLocks
	logger  *slog.Logger
}

// New creates a remote backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("remote owner and repo are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := util.ValidateRemoteURL(cfg.APIURL, cfg.AllowPrivate); err != nil {
		return nil, fmt.Errorf("remote API URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		if !cfg.AllowPrivate {
			transport.DialContext = util.SSRFSafeDialContext(&net.Dialer{Timeout: 10 * time.Second})
		}
		client = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		cfg:     cfg,
		base:    fmt.Sprintf("%s/repos/%s/%s/contents", strings.TrimRight(cfg.APIURL, "/"), url.PathEscape(cfg.Owner), url.PathEscape(cfg.Repo)),
		client:  client,
		limiter: limiter,
		locks:   newKeyLocks(),
		logger:  logger,
	}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "remote"
}

// contentItem is one element of a contents API response.
type contentItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func (b *Backend) repoPath(key storage.Key) string {
	return path.Join(storage.CleanPath(b.cfg.Root), key.FullPath())
}

func (b *Backend) contentsURL(key storage.Key, withRef bool) string {
	parts := strings.Split(b.repoPath(key), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	u := b.base + "/" + strings.Join(parts, "/")
	if withRef {
		u += "?ref=" + url.QueryEscape(b.cfg.Branch)
	}
	return u
}

func (b *Backend) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	return nil, &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

// classify maps a transport or API failure to the error taxonomy.
func (b *Backend) classify(op string, key storage.Key, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		switch ae.Status {
		case http.StatusNotFound:
			return storage.NotFound(key)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%s %s: %w (%v)", op, key, model.ErrConflict, ae)
		}
	}
	return &model.StorageError{Backend: b.Name(), Op: op, Key: key.FullPath(), Err: err}
}

// fetch returns the single-file or directory listing response for key.
func (b *Backend) fetch(ctx context.Context, key storage.Key) (json.RawMessage, error) {
	resp, err := b.do(ctx, http.MethodGet, b.contentsURL(key, true), nil)
	if err != nil {
		return nil, b.classify("read", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &model.StorageError{Backend: b.Name(), Op: "read", Key: key.FullPath(), Err: err}
	}
	return raw, nil
}

func (b *Backend) fetchFile(ctx context.Context, key storage.Key) (*contentItem, error) {
	raw, err := b.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] == '[' {
		return nil, storage.NotFound(key)
	}
	var item contentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, &model.StorageError{Backend: b.Name(), Op: "read", Key: key.FullPath(), Err: err}
	}
	if item.Type != "" && item.Type != "file" {
		return nil, storage.NotFound(key)
	}
	return &item, nil
}

// ReadRevision implements storage.Revisioned; the revision is the blob SHA.
func (b *Backend) ReadRevision(ctx context.Context, key storage.Key) ([]byte, string, error) {
	item, err := b.fetchFile(ctx, key)
	if err != nil {
		return nil, "", err
	}

	switch item.Encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
		if err != nil {
			return nil, "", &model.StorageError{Backend: b.Name(), Op: "decode", Key: key.FullPath(), Err: err}
		}
		return data, item.SHA, nil
	case "", "none":
		// Files above the inline limit come without content.
		if item.DownloadURL == "" {
			return []byte(item.Content), item.SHA, nil
		}
		data, err := b.download(ctx, key, item.DownloadURL)
		if err != nil {
			return nil, "", err
		}
		return data, item.SHA, nil
	default:
		return nil, "", &model.StorageError{Backend: b.Name(), Op: "decode", Key: key.FullPath(),
			Err: fmt.Errorf("unsupported encoding %q", item.Encoding)}
	}
}

func (b *Backend) download(ctx context.Context, key storage.Key, u string) ([]byte, error) {
	resp, err := b.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, b.classify("download", key, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.StorageError{Backend: b.Name(), Op: "download", Key: key.FullPath(), Err: err}
	}
	return data, nil
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, key storage.Key) ([]byte, error) {
	data, _, err := b.ReadRevision(ctx, key)
	return data, err
}

// currentSHA returns the SHA of key, or "" when it does not exist.
func (b *Backend) currentSHA(ctx context.Context, key storage.Key) (string, error) {
	item, err := b.fetchFile(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return item.SHA, nil
}

// Write implements storage.Backend. Without WithRevision the current SHA is
// looked up first and a missing file is created.
func (b *Backend) Write(ctx context.Context, key storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)
	unlock := b.locks.lock(key.FullPath())
	defer unlock()

	sha := o.Revision
	if sha == "" {
		var err error
		if sha, err = b.currentSHA(ctx, key); err != nil {
			return err
		}
	}

	msg := o.Message
	if msg == "" {
		msg = defaultMessage("Update", key)
		if sha == "" {
			msg = defaultMessage("Create", key)
		}
	}

	resp, err := b.do(ctx, http.MethodPut, b.contentsURL(key, false), writeRequest{
		Message: msg,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
		Branch:  b.cfg.Branch,
	})
	if err != nil {
		return b.classify("write", key, err)
	}
	_ = resp.Body.Close()

	b.logger.Debug("remote commit", "op", "write", "key", key.FullPath(), "message", msg)
	return nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key storage.Key, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)
	unlock := b.locks.lock(key.FullPath())
	defer unlock()

	sha := o.Revision
	if sha == "" {
		var err error
		if sha, err = b.currentSHA(ctx, key); err != nil {
			return err
		}
		if sha == "" {
			return storage.NotFound(key)
		}
	}

	msg := o.Message
	if msg == "" {
		msg = defaultMessage("Delete", key)
	}

	resp, err := b.do(ctx, http.MethodDelete, b.contentsURL(key, false), writeRequest{
		Message: msg,
		SHA:     sha,
		Branch:  b.cfg.Branch,
	})
	if err != nil {
		return b.classify("delete", key, err)
	}
	_ = resp.Body.Close()

	b.logger.Debug("remote commit", "op", "delete", "key", key.FullPath(), "message", msg)
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key storage.Key) (bool, error) {
	_, err := b.fetchFile(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List implements storage.Backend.
func (b *Backend) List(ctx context.Context, dir storage.Key) ([]string, error) {
	raw, err := b.fetch(ctx, dir)
	if err != nil {
		if storage.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 || raw[0] != '[' {
		return []string{}, nil
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &model.StorageError{Backend: b.Name(), Op: "list", Key: dir.FullPath(), Err: err}
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names, nil
}

// EnsureDir implements storage.Backend. Git has no empty directories.
func (b *Backend) EnsureDir(context.Context, storage.Key) error {
	return nil
}

func defaultMessage(verb string, key storage.Key) string {
	return fmt.Sprintf("%s %s", verb, key.FullPath())
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Revisioned = (*Backend)(nil)
)
