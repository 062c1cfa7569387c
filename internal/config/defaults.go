// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// DefaultConfigFile is the main configuration file name inside the config directory.
const DefaultConfigFile = "default.yml"

//go:embed defaults/*.yml
var defaultFiles embed.FS

// WriteDefaults writes default.yml, models.yml and prompt_templates.yml to
// dir. Existing files are kept unless force is set. It returns the paths
// that were written.
func WriteDefaults(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	var written []string
	for _, name := range []string{DefaultConfigFile, ModelsFile, TemplatesFile} {
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil && !force {
			log.Debugf("config file %s exists, skipping", target)
			continue
		}
		data, err := defaultFiles.ReadFile("defaults/" + name)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(target, data, 0600); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, target)
	}
	return written, nil
}

// DefaultModels returns the built-in model catalog.
func DefaultModels() []ModelSpec {
	data, _ := defaultFiles.ReadFile("defaults/" + ModelsFile)
	models, err := parseModels(data)
	if err != nil {
		log.Errorf("built-in model catalog is invalid: %v", err)
	}
	return models
}

// DefaultTemplates returns the built-in prompt templates.
func DefaultTemplates() []PromptTemplate {
	data, _ := defaultFiles.ReadFile("defaults/" + TemplatesFile)
	templates, err := parseTemplates(data)
	if err != nil {
		log.Errorf("built-in prompt templates are invalid: %v", err)
	}
	return templates
}
