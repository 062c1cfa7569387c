// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store uploads feedback store snapshots to S3-compatible object
// storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
)

// ErrArchiveDisabled is returned when archiving is not configured.
var ErrArchiveDisabled = errors.New("archive is disabled")

const snapshotContentType = "application/vnd.sqlite3"

// Archiver uploads a local file and returns its object location.
type Archiver interface {
	Archive(ctx context.Context, localPath string) (string, error)
}

// ObjectArchiver stores backups in a bucket under a key prefix.
type ObjectArchiver struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewObjectArchiver creates an archiver from cfg.
//
// Parameters:
//   - cfg: The archive configuration
//
// Returns:
//   - *ObjectArchiver: The archiver
//   - error: ErrArchiveDisabled or an invalid endpoint
func NewObjectArchiver(cfg config.ArchiveConfig) (*ObjectArchiver, error) {
	if !cfg.Enabled {
		return nil, ErrArchiveDisabled
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &ObjectArchiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}, nil
}

// ObjectKey returns the key a local file is stored under.
func (a *ObjectArchiver) ObjectKey(localPath string) string {
	name := filepath.Base(localPath)
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// EnsureBucket creates the bucket when it does not exist.
func (a *ObjectArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	log.Infof("created archive bucket %s", a.bucket)
	return nil
}

// Archive uploads localPath and returns "<bucket>/<key>".
func (a *ObjectArchiver) Archive(ctx context.Context, localPath string) (string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		return "", err
	}
	key := a.ObjectKey(localPath)
	info, err := a.client.FPutObject(ctx, a.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: snapshotContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}
	log.Infof("archived %s to %s/%s (%d bytes)", localPath, a.bucket, key, info.Size)
	return a.bucket + "/" + key, nil
}
