// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/localassist/internal/config"
)

const catalogV1 = `models:
  - name: "alpha:1b"
    role: llm
    strengths:
      language: 0.8
`

const catalogV2 = `models:
  - name: "alpha:1b"
    role: llm
  - name: "beta:7b"
    role: deep_thinking
    strengths:
      reasoning: 0.9
`

type reloadCall struct {
	models    []config.ModelSpec
	templates []config.PromptTemplate
}

func startWatcher(t *testing.T, dir string) (*CatalogWatcher, <-chan reloadCall) {
	t.Helper()
	calls := make(chan reloadCall, 8)
	w := New(nil, dir, func(models []config.ModelSpec, templates []config.PromptTemplate) {
		calls <- reloadCall{models: models, templates: templates}
	})
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w, calls
}

func waitReload(t *testing.T, calls <-chan reloadCall) reloadCall {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("catalog was not reloaded")
		return reloadCall{}
	}
}

func TestCatalogWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, config.ModelsFile)
	require.NoError(t, os.WriteFile(modelsPath, []byte(catalogV1), 0600))
	_, calls := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(modelsPath, []byte(catalogV2), 0600))
	c := waitReload(t, calls)
	require.Len(t, c.models, 2)
	assert.Equal(t, "beta:7b", c.models[1].Name)
	assert.Equal(t, 0.9, c.models[1].Strengths["reasoning"])
}

func TestCatalogWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ModelsFile), []byte(catalogV1), 0600))
	_, calls := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	select {
	case <-calls:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCatalogWatcher_EmptyCatalogKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	called := false
	w := New(nil, dir, func([]config.ModelSpec, []config.PromptTemplate) { called = true })
	w.Reload()
	assert.False(t, called)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ModelsFile), []byte(catalogV1), 0600))
	w.Reload()
	assert.True(t, called)
}

func TestCatalogWatcher_StopIsIdempotent(t *testing.T) {
	w := New(nil, t.TempDir(), func([]config.ModelSpec, []config.PromptTemplate) {})
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()

	assert.Error(t, New(nil, filepath.Join(t.TempDir(), "missing"), nil).Start())
}

func TestIsCatalogEvent(t *testing.T) {
	assert.True(t, isCatalogEvent(fsnotify.Event{Name: "/x/models.yml", Op: fsnotify.Write}))
	assert.True(t, isCatalogEvent(fsnotify.Event{Name: "/x/prompt_templates.yml", Op: fsnotify.Create}))
	assert.False(t, isCatalogEvent(fsnotify.Event{Name: "/x/models.yml", Op: fsnotify.Chmod}))
	assert.False(t, isCatalogEvent(fsnotify.Event{Name: "/x/config.yml", Op: fsnotify.Write}))
}
