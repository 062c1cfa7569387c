// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/assistant"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence"
	"github.com/traylinx/localassist/internal/intelligence/discussion"
	"github.com/traylinx/localassist/internal/logging"
	"github.com/traylinx/localassist/internal/runtime/executor"
	"github.com/traylinx/localassist/internal/util"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        *config.Config
	configPath string
	configDir  string
	sb         *util.StateBox

	manager     *intelligence.Manager
	executor    *executor.OllamaExecutor
	discussions *discussion.Manager
	session     *assistant.Session

	stdin  io.Reader
	stdout io.Writer
}

func openStateBox(opts globalOptions) (*util.StateBox, error) {
	if opts.stateDir != "" {
		return util.NewStateBoxAt(opts.stateDir, opts.readOnly)
	}
	sb, err := util.NewStateBox()
	if err != nil {
		return nil, err
	}
	if opts.readOnly {
		sb.SetReadOnly(true)
	}
	return sb, nil
}

func defaultConfigPath(sb *util.StateBox) string {
	return filepath.Join(sb.ResolvePath(config.Default().System.ConfigDir), config.DefaultConfigFile)
}

// newApp loads the configuration and wires the manager, the inference
// client, the discussion manager and the session.
func newApp(opts globalOptions, stdin io.Reader, stdout io.Writer) (*app, error) {
	sb, err := openStateBox(opts)
	if err != nil {
		return nil, err
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = defaultConfigPath(sb)
	}
	cfg, err := config.LoadConfigOptional(configPath, opts.configPath == "")
	if err != nil {
		return nil, err
	}

	level := cfg.System.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logging.SetLevel(level)
	if err := logging.ConfigureLogOutput(cfg.System.LoggingToFile, sb.LogsDir(), cfg.System.LogsMaxSizeMB); err != nil {
		return nil, fmt.Errorf("failed to configure log output: %w", err)
	}

	configDir := sb.ResolvePath(cfg.System.ConfigDir)
	models, templates := cfg.Catalogs(configDir)
	if len(models) == 0 {
		log.Info("using the built-in model catalog")
		models = config.DefaultModels()
	}
	if len(templates) == 0 {
		templates = config.DefaultTemplates()
	}

	manager := intelligence.NewManager(cfg, models, templates, sb)
	if err := manager.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize feedback store: %w", err)
	}

	exec := executor.NewOllamaExecutor(cfg.Ollama)
	disc := discussion.NewManager(exec, models, cfg.GroupDiscussion)

	return &app{
		cfg:         cfg,
		configPath:  configPath,
		configDir:   configDir,
		sb:          sb,
		manager:     manager,
		executor:    exec,
		discussions: disc,
		session:     assistant.NewSession(cfg, manager, exec, disc),
		stdin:       stdin,
		stdout:      stdout,
	}, nil
}

// reloadCatalog swaps the catalog in every component that holds one.
func (a *app) reloadCatalog(models []config.ModelSpec, templates []config.PromptTemplate) {
	if len(templates) == 0 {
		templates = config.DefaultTemplates()
	}
	a.manager.ReloadCatalog(models, templates)
	a.discussions.SetModels(models)
}

func (a *app) close() {
	if err := a.manager.SaveState(); err != nil {
		log.Debugf("learner state not saved: %v", err)
	}
}
