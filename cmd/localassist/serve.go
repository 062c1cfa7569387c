// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/api"
	"github.com/traylinx/localassist/internal/store"
	"github.com/traylinx/localassist/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// cmdServe runs the HTTP API until SIGINT or SIGTERM.
func cmdServe(a *app, args []string) int {
	fs := newFlagSet(a, "serve")
	host := fs.String("host", "", "Listen host (default from config)")
	port := fs.Int("port", 0, "Listen port (default from config)")
	noWatch := fs.Bool("no-watch", false, "Do not reload catalogs when they change")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *host != "" {
		a.cfg.API.Host = *host
	}
	if *port > 0 {
		a.cfg.API.Port = *port
	}
	if a.cfg.API.AuthRequired && a.cfg.API.APIKey == "" {
		log.Error("api.auth_required is set but no api_key is configured (set api.api_key or LOCALASSIST_API_KEY)")
		return 1
	}

	deps := api.Dependencies{
		Manager:  a.manager,
		Session:  a.session,
		StateBox: a.sb,
	}
	if a.cfg.Archive.Enabled {
		archiver, err := store.NewObjectArchiver(a.cfg.Archive)
		if err != nil {
			log.Warnf("backup archiving disabled: %v", err)
		} else {
			deps.Archiver = archiver
		}
	}

	if a.cfg.System.WatchCatalogs && !*noWatch {
		w := watcher.New(a.cfg, a.configDir, a.reloadCatalog)
		if err := w.Start(); err != nil {
			log.Warnf("catalog hot reload disabled: %v", err)
		} else {
			defer w.Stop()
		}
	}

	server := api.NewServer(a.cfg, deps)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error(err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		log.Infof("received %s", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
		return 1
	}
	return 0
}
