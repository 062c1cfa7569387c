// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/localassist/internal/config"
)

// fakeS3 records the requests of a minimal S3 endpoint.
type fakeS3 struct {
	mu           sync.Mutex
	bucketExists bool
	requests     []string
	uploaded     map[string]int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Bucket-level requests arrive as "/<bucket>/".
	path := strings.TrimSuffix(r.URL.Path, "/")
	f.requests = append(f.requests, r.Method+" "+path)

	_, key, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && key == "":
		if !f.bucketExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.bucketExists = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.uploaded[key] = len(body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeArchiver(t *testing.T, fake *fakeS3, prefix string) *ObjectArchiver {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	a, err := NewObjectArchiver(config.ArchiveConfig{
		Enabled:   true,
		Endpoint:  server.URL,
		Bucket:    "backups",
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Prefix:    prefix,
	})
	require.NoError(t, err)
	return a
}

func writeSnapshot(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "feedback_backup_20260501_120000.db")
	require.NoError(t, os.WriteFile(p, []byte("SQLite format 3\x00snapshot"), 0600))
	return p
}

func TestObjectArchiver_Archive(t *testing.T) {
	fake := &fakeS3{bucketExists: true, uploaded: map[string]int{}}
	a := newFakeArchiver(t, fake, "/localassist/backups/")

	location, err := a.Archive(context.Background(), writeSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, "backups/localassist/backups/feedback_backup_20260501_120000.db", location)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.uploaded, "localassist/backups/feedback_backup_20260501_120000.db")
	assert.Contains(t, fake.requests, "PUT /backups/localassist/backups/feedback_backup_20260501_120000.db")
}

func TestObjectArchiver_CreatesBucket(t *testing.T) {
	fake := &fakeS3{uploaded: map[string]int{}}
	a := newFakeArchiver(t, fake, "")

	_, err := a.Archive(context.Background(), writeSnapshot(t))
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.bucketExists)
	assert.Contains(t, fake.requests, "PUT /backups")
	assert.Contains(t, fake.uploaded, "feedback_backup_20260501_120000.db")
}

func TestObjectArchiver_EnsureBucket(t *testing.T) {
	fake := &fakeS3{uploaded: map[string]int{}}
	a := newFakeArchiver(t, fake, "")

	require.NoError(t, a.EnsureBucket(context.Background()))
	require.NoError(t, a.EnsureBucket(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"HEAD /backups", "PUT /backups", "HEAD /backups"}, fake.requests)
}

func TestObjectArchiver_MissingFile(t *testing.T) {
	fake := &fakeS3{bucketExists: true, uploaded: map[string]int{}}
	a := newFakeArchiver(t, fake, "")

	_, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestNewObjectArchiver_Validation(t *testing.T) {
	_, err := NewObjectArchiver(config.ArchiveConfig{})
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	_, err = NewObjectArchiver(config.ArchiveConfig{Enabled: true, Endpoint: "s3.local:9000"})
	assert.Error(t, err, "bucket is required")

	a, err := NewObjectArchiver(config.ArchiveConfig{Enabled: true, Endpoint: "https://s3.local:9000", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "x.db", a.ObjectKey("/tmp/x.db"))
}
