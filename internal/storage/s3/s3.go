// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package s3 implements storage.Backend on an S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/olegiv/ocms-content/internal/model"
	"github.com/olegiv/ocms-content/internal/storage"
)

// Config options for the S3 backend.
type Config struct {
	Region          string // AWS region
	Bucket          string // Bucket name
	AccessKeyID     string // Static credentials; default chain when empty
	SecretAccessKey string
	Endpoint        string // Custom endpoint for S3-compatible services
	UsePathStyle    bool   // Path-style addressing (MinIO)
	Prefix          string // Optional key prefix inside the bucket
	PublicURL       string // Optional public base URL objects are served from

	CreateBucketIfNotExist bool
}

// Client is the subset of the S3 API the backend uses.
type Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Backend stores each key as one object.
type Backend struct {
	client   Client
	uploader *manager.Uploader
	cfg      Config
}

// New creates a backend with an SDK client built from cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	if cfg.CreateBucketIfNotExist {
		if err := createBucketIfNotExists(ctx, client, cfg); err != nil {
			return nil, err
		}
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a backend around an existing client.
func NewWithClient(client Client, cfg Config) *Backend {
	return &Backend{client: client, uploader: manager.NewUploader(client), cfg: cfg}
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, cfg Config) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) && apiErrorCode(err) != "NoSuchBucket" {
		return fmt.Errorf("checking bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}
	if cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		if code := apiErrorCode(err); code == "BucketAlreadyExists" || code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("creating bucket: %w", err)
	}
	return nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "s3"
}

func (b *Backend) objectKey(key storage.Key) string {
	return path.Join(storage.CleanPath(b.cfg.Prefix), key.FullPath())
}

func (b *Backend) storageErr(op string, key storage.Key, err error) error {
	return &model.StorageError{Backend: b.Name(), Op: op, Key: key.FullPath(), Err: err}
}

// ReadRevision implements storage.Revisioned; the revision is the ETag.
func (b *Backend) ReadRevision(ctx context.Context, key storage.Key) ([]byte, string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", storage.NotFound(key)
		}
		return nil, "", b.storageErr("read", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", b.storageErr("read", key, err)
	}
	return data, aws.ToString(out.ETag), nil
}

// Read implements storage.Backend.
func (b *Backend) Read(ctx context.Context, key storage.Key) ([]byte, error) {
	data, _, err := b.ReadRevision(ctx, key)
	return data, err
}

// Write implements storage.Backend. A revision becomes an If-Match condition.
func (b *Backend) Write(ctx context.Context, key storage.Key, content []byte, opts ...storage.WriteOption) error {
	o := storage.ApplyOptions(opts...)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(http.DetectContentType(content)),
	}
	if o.Revision != "" {
		input.IfMatch = aws.String(o.Revision)
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		if code := apiErrorCode(err); code == "PreconditionFailed" || code == "ConditionalRequestConflict" {
			return fmt.Errorf("%s: %w", key, model.ErrConflict)
		}
		return b.storageErr("write", key, err)
	}
	return nil
}

// Delete implements storage.Backend. S3 deletes are idempotent, so existence
// is checked first to report NotFound.
func (b *Backend) Delete(ctx context.Context, key storage.Key, _ ...storage.WriteOption) error {
	ok, err := b.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return storage.NotFound(key)
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	}); err != nil {
		return b.storageErr("delete", key, err)
	}
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key storage.Key) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, b.storageErr("exists", key, err)
	}
	return true, nil
}

// List implements storage.Backend with a delimited listing.
func (b *Backend) List(ctx context.Context, dir storage.Key) ([]string, error) {
	prefix := b.objectKey(dir) + "/"
	pager := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	names := []string{}
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, b.storageErr("list", dir, err)
		}
		for _, cp := range page.CommonPrefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/"))
		}
		for _, obj := range page.Contents {
			if name := strings.TrimPrefix(aws.ToString(obj.Key), prefix); name != "" {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// EnsureDir implements storage.Backend. Prefixes need no creation.
func (b *Backend) EnsureDir(context.Context, storage.Key) error {
	return nil
}

// URL implements storage.Linker when a public URL is configured.
func (b *Backend) URL(key storage.Key) string {
	if b.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(b.cfg.PublicURL, "/") + "/" + b.objectKey(key)
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Revisioned = (*Backend)(nil)
	_ storage.Linker     = (*Backend)(nil)
)
