// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher reloads the model catalog and prompt templates when their
// files change on disk.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the freshly loaded catalog.
type ReloadFunc func(models []config.ModelSpec, templates []config.PromptTemplate)

// CatalogWatcher watches the config directory for writes to models.yml and
// prompt_templates.yml.
type CatalogWatcher struct {
	cfg      *config.Config
	dir      string
	reload   ReloadFunc
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	stop    chan struct{}
	done    chan struct{}
}

// New creates a watcher for dir. cfg supplies an inline model list that
// takes precedence over models.yml, as at startup.
func New(cfg *config.Config, dir string, reload ReloadFunc) *CatalogWatcher {
	if cfg == nil {
		cfg = config.Default()
	}
	return &CatalogWatcher{
		cfg:      cfg,
		dir:      dir,
		reload:   reload,
		debounce: DefaultDebounce,
	}
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *CatalogWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching in a background goroutine.
func (w *CatalogWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	// Editors often replace files by rename, so the directory is watched
	// rather than the files themselves.
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = fw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.loop(fw, w.stop, w.done)
	log.Infof("watching %s for catalog changes", w.dir)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *CatalogWatcher) Stop() {
	w.mu.Lock()
	fw, stop, done := w.watcher, w.stop, w.done
	w.watcher = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	if fw == nil {
		return
	}
	close(stop)
	fw.Close()
	<-done
}

func (w *CatalogWatcher) loop(fw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if isCatalogEvent(event) {
				log.Debugf("catalog file changed: %s (%s)", event.Name, event.Op)
				w.schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Errorf("catalog watcher error: %v", err)
		case <-stop:
			return
		}
	}
}

func isCatalogEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	switch filepath.Base(event.Name) {
	case config.ModelsFile, config.TemplatesFile:
		return true
	}
	return false
}

func (w *CatalogWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Reload)
}

// Reload reads the catalog now and hands it to the reload callback. An
// empty model list keeps the current catalog.
func (w *CatalogWatcher) Reload() {
	models, templates := w.cfg.Catalogs(w.dir)
	if len(models) == 0 {
		log.Warn("reloaded model catalog is empty, keeping the current one")
		return
	}
	log.Infof("catalog reloaded: %d models, %d templates", len(models), len(templates))
	w.reload(models, templates)
}
