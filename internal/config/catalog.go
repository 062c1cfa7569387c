// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// Catalog file names inside the config directory.
const (
	ModelsFile    = "models.yml"
	TemplatesFile = "prompt_templates.yml"
)

// ModelSpec is one entry of the model catalog.
type ModelSpec struct {
	// Name is the inference server's model tag, e.g. "qwen2.5-coder:7b".
	Name string `yaml:"name" json:"name"`
	// Role is a free-form label; "deep_thinking" marks the preferred
	// synthesis model for group discussions.
	Role         string             `yaml:"role" json:"role"`
	SystemPrompt string             `yaml:"system_prompt" json:"system_prompt"`
	Strengths    map[string]float64 `yaml:"strengths" json:"strengths"`
}

// PromptTemplate is a parameterized prompt skeleton.
type PromptTemplate struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Domains     []string `yaml:"domains" json:"domains"`
	// Complexity is one of "low", "medium" or "high".
	Complexity string   `yaml:"complexity" json:"complexity"`
	UseCases   []string `yaml:"use_cases" json:"use_cases"`
	Template   string   `yaml:"template" json:"template"`
}

type modelsFile struct {
	Models []ModelSpec `yaml:"models"`
}

type templatesFile struct {
	Templates []PromptTemplate `yaml:"templates"`
}

// LoadModelCatalog reads the model catalog from path.
func LoadModelCatalog(path string) ([]ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	models, err := parseModels(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model catalog %s: %w", filepath.Base(path), err)
	}
	return models, nil
}

// LoadTemplates reads prompt templates from path.
func LoadTemplates(path string) ([]PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt templates: %w", err)
	}
	templates, err := parseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates %s: %w", filepath.Base(path), err)
	}
	return templates, nil
}

func parseModels(data []byte) ([]ModelSpec, error) {
	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return NormalizeModels(f.Models), nil
}

func parseTemplates(data []byte) ([]PromptTemplate, error) {
	var f templatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return NormalizeTemplates(f.Templates), nil
}

// Catalogs resolves the model catalog and templates for cfg. The inline
// models list wins over models.yml. Missing files degrade to empty lists.
func (cfg *Config) Catalogs(configDir string) ([]ModelSpec, []PromptTemplate) {
	models := cfg.Models
	if len(models) == 0 {
		loaded, err := LoadModelCatalog(filepath.Join(configDir, ModelsFile))
		if err != nil {
			log.Warnf("model catalog unavailable: %v", err)
		} else {
			models = loaded
		}
	}
	templates, err := LoadTemplates(filepath.Join(configDir, TemplatesFile))
	if err != nil {
		log.Warnf("prompt templates unavailable: %v", err)
		templates = nil
	}
	return models, templates
}

// NormalizeModels trims names, drops unnamed or duplicate entries and
// clamps strengths into [0,1].
func NormalizeModels(models []ModelSpec) []ModelSpec {
	if len(models) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]ModelSpec, 0, len(models))
	for _, m := range models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		if _, dup := seen[m.Name]; dup {
			log.Warnf("duplicate model %q in catalog ignored", m.Name)
			continue
		}
		seen[m.Name] = struct{}{}
		if len(m.Strengths) > 0 {
			clean := make(map[string]float64, len(m.Strengths))
			for k, v := range m.Strengths {
				clean[strings.TrimSpace(k)] = clamp(v, 0, 1)
			}
			m.Strengths = clean
		}
		out = append(out, m)
	}
	return out
}

// NormalizeTemplates drops templates without a name or body and defaults
// the complexity tier to medium.
func NormalizeTemplates(templates []PromptTemplate) []PromptTemplate {
	out := make([]PromptTemplate, 0, len(templates))
	for _, t := range templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" || t.Template == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(t.Complexity)) {
		case "low":
			t.Complexity = "low"
		case "high":
			t.Complexity = "high"
		default:
			t.Complexity = "medium"
		}
		out = append(out, t)
	}
	return out
}
