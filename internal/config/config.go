// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the localassist configuration: the main YAML file
// with system, inference, optimization, API and archive settings, plus the
// model catalog and prompt template files it points at.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

// Template selection strategies.
const (
	StrategyBestMatch        = "best_match"
	StrategyPerformanceBased = "performance_based"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	System          SystemConfig          `yaml:"system" json:"system"`
	Ollama          OllamaConfig          `yaml:"ollama" json:"ollama"`
	Assistant       AssistantConfig       `yaml:"assistant" json:"assistant"`
	GroupDiscussion GroupDiscussionConfig `yaml:"group_discussion" json:"group_discussion"`
	Optimization    OptimizationConfig    `yaml:"optimization" json:"optimization"`
	API             APIConfig             `yaml:"api" json:"api"`
	Archive         ArchiveConfig         `yaml:"archive" json:"archive"`

	// Models is an inline model catalog. When empty the catalog is read
	// from <config_dir>/models.yml.
	Models []ModelSpec `yaml:"models,omitempty" json:"models,omitempty"`
}

// SystemConfig holds paths and logging settings. Relative paths are
// resolved against the state directory.
type SystemConfig struct {
	LogLevel       string `yaml:"log_level" json:"log_level"`
	LoggingToFile  bool   `yaml:"logging_to_file" json:"logging_to_file"`
	LogsMaxSizeMB  int    `yaml:"logs_max_size_mb" json:"logs_max_size_mb"`
	DataDir        string `yaml:"data_dir" json:"data_dir"`
	FeedbackDB     string `yaml:"feedback_db" json:"feedback_db"`
	RLHFExportDir  string `yaml:"rlhf_export_dir" json:"rlhf_export_dir"`
	ConfigDir      string `yaml:"config_dir" json:"config_dir"`
	StateFile      string `yaml:"state_file" json:"state_file"`
	WatchCatalogs  bool   `yaml:"watch_catalogs" json:"watch_catalogs"`
}

// OllamaConfig configures the local inference server.
type OllamaConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout"`
	RetryAttempts  int    `yaml:"retry_attempts" json:"retry_attempts"`
}

// AssistantConfig holds generation defaults.
type AssistantConfig struct {
	DefaultMaxTokens         int     `yaml:"default_max_tokens" json:"default_max_tokens"`
	DefaultTemperature       float64 `yaml:"default_temperature" json:"default_temperature"`
	ConversationHistoryLimit int     `yaml:"conversation_history_limit" json:"conversation_history_limit"`
}

// GroupDiscussionConfig describes the group discussion pseudo-model.
type GroupDiscussionConfig struct {
	Name          string             `yaml:"name" json:"name"`
	SystemPrompt  string             `yaml:"system_prompt" json:"system_prompt"`
	Strengths     map[string]float64 `yaml:"strengths" json:"strengths"`
	DefaultRounds int                `yaml:"default_rounds" json:"default_rounds"`
}

// OptimizationConfig groups the feedback loop settings.
type OptimizationConfig struct {
	Enabled                         bool                     `yaml:"enabled" json:"enabled"`
	AutoSelectModel                 bool                     `yaml:"auto_select_model" json:"auto_select_model"`
	CheckGroupDiscussionSuitability bool                     `yaml:"check_group_discussion_suitability" json:"check_group_discussion_suitability"`
	Feedback                        FeedbackConfig           `yaml:"feedback" json:"feedback"`
	Preference                      PreferenceConfig         `yaml:"preference" json:"preference"`
	PromptOptimization              PromptOptimizationConfig `yaml:"prompt_optimization" json:"prompt_optimization"`
}

// FeedbackConfig controls feedback collection.
type FeedbackConfig struct {
	Enabled               bool    `yaml:"enabled" json:"enabled"`
	CollectionProbability float64 `yaml:"collection_probability" json:"collection_probability"`
	CollectComparisons    bool    `yaml:"collect_comparisons" json:"collect_comparisons"`
	FeedbackCacheSize     int     `yaml:"feedback_cache_size" json:"feedback_cache_size"`
}

// PreferenceConfig holds the weight update constants.
type PreferenceConfig struct {
	WeightUpdateFactor float64 `yaml:"weight_update_factor" json:"weight_update_factor"`
	WinRateWeight      float64 `yaml:"win_rate_weight" json:"win_rate_weight"`
	ScoreWeight        float64 `yaml:"score_weight" json:"score_weight"`
	DefaultWeight      float64 `yaml:"default_weight" json:"default_weight"`
	MinWeight          float64 `yaml:"min_weight" json:"min_weight"`
	MaxWeight          float64 `yaml:"max_weight" json:"max_weight"`
}

// PromptOptimizationConfig controls template selection and rendering.
type PromptOptimizationConfig struct {
	TemplateSelectionStrategy string `yaml:"template_selection_strategy" json:"template_selection_strategy"`
	MaxPromptTokenCount       int    `yaml:"max_prompt_token_count" json:"max_prompt_token_count"`
	DynamicInstructionTuning  bool   `yaml:"dynamic_instruction_tuning" json:"dynamic_instruction_tuning"`
	// Directives are appended to the built-in directive rules.
	Directives []DirectiveRule `yaml:"directives,omitempty" json:"directives,omitempty"`
}

// DirectiveRule is a conditional instruction appended to rendered prompts.
// When is an expr-lang expression evaluated against the query analysis.
type DirectiveRule struct {
	Name string `yaml:"name" json:"name"`
	When string `yaml:"when" json:"when"`
	Text string `yaml:"text" json:"text"`
}

// APIConfig configures the optional HTTP server.
type APIConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	AuthRequired bool   `yaml:"auth_required" json:"auth_required"`
	// APIKey is stored as a bcrypt hash. Plaintext values are hashed on load.
	APIKey string `yaml:"api_key" json:"-"`
}

// ArchiveConfig configures off-site backup uploads to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.System = SystemConfig{
		LogLevel:      "info",
		LogsMaxSizeMB: 10,
		DataDir:       "data",
		FeedbackDB:    "data/feedback.db",
		RLHFExportDir: "data/rlhf_exports",
		ConfigDir:     "config",
		StateFile:     "data/learner_state.json",
		WatchCatalogs: true,
	}
	cfg.Ollama = OllamaConfig{
		BaseURL:        "http://localhost:11434",
		TimeoutSeconds: 30,
		RetryAttempts:  3,
	}
	cfg.Assistant = AssistantConfig{
		DefaultMaxTokens:         1024,
		DefaultTemperature:       0.7,
		ConversationHistoryLimit: 100,
	}
	cfg.GroupDiscussion = GroupDiscussionConfig{
		Name:          "group_discussion",
		SystemPrompt:  "Đây là kết quả thảo luận nhóm giữa các AI chuyên gia khác nhau. Mỗi chuyên gia đã đóng góp từ lĩnh vực chuyên môn của họ, và kết quả đã được tổng hợp thành một câu trả lời toàn diện.\n",
		DefaultRounds: 2,
		Strengths: map[string]float64{
			"comprehensive":   0.9,
			"balanced":        0.88,
			"thorough":        0.85,
			"creative":        0.8,
			"problem_solving": 0.88,
			"language":        0.85,
		},
	}
	cfg.Optimization = OptimizationConfig{
		Enabled:                         true,
		AutoSelectModel:                 true,
		CheckGroupDiscussionSuitability: true,
		Feedback: FeedbackConfig{
			Enabled:               true,
			CollectionProbability: 0.3,
			CollectComparisons:    true,
			FeedbackCacheSize:     1000,
		},
		Preference: PreferenceConfig{
			WeightUpdateFactor: 0.1,
			WinRateWeight:      0.7,
			ScoreWeight:        0.3,
			DefaultWeight:      1.0,
			MinWeight:          0.5,
			MaxWeight:          2.0,
		},
		PromptOptimization: PromptOptimizationConfig{
			TemplateSelectionStrategy: StrategyBestMatch,
			MaxPromptTokenCount:       2048,
			DynamicInstructionTuning:  true,
		},
	}
	cfg.API = APIConfig{
		Enabled:      false,
		Host:         "127.0.0.1",
		Port:         8000,
		AuthRequired: true,
	}
	cfg.Archive = ArchiveConfig{
		Region: "us-east-1",
		UseSSL: true,
		Prefix: "localassist/backups",
	}
}

// LoadConfig reads and parses the YAML configuration at configFile.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile. If optional is true and the
// file is missing or empty, the defaults are returned.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.API.APIKey != "" && !looksLikeBcrypt(cfg.API.APIKey) {
		hashed, errHash := HashAPIKey(cfg.API.APIKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash api key: %w", errHash)
		}
		cfg.API.APIKey = hashed
		// Persist the hash so the plaintext key does not stay on disk.
		if errSave := UpdateNestedScalar(configFile, []string{"api", "api_key"}, hashed); errSave != nil {
			return nil, fmt.Errorf("failed to persist hashed api key: %w", errSave)
		}
	}

	return cfg, nil
}

// Parse decodes YAML bytes on top of the defaults and sanitizes the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps out-of-range values and fills blanks with defaults.
func (cfg *Config) Sanitize() {
	cfg.SanitizeSystem()
	cfg.SanitizeOllama()
	cfg.SanitizeOptimization()
	cfg.SanitizeAPI()
	cfg.Models = NormalizeModels(cfg.Models)
}

// SanitizeSystem fills empty paths and normalizes the log level.
func (cfg *Config) SanitizeSystem() {
	def := Default().System
	s := &cfg.System
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	if s.LogsMaxSizeMB <= 0 {
		s.LogsMaxSizeMB = def.LogsMaxSizeMB
	}
	if strings.TrimSpace(s.DataDir) == "" {
		s.DataDir = def.DataDir
	}
	if strings.TrimSpace(s.FeedbackDB) == "" {
		s.FeedbackDB = def.FeedbackDB
	}
	if strings.TrimSpace(s.RLHFExportDir) == "" {
		s.RLHFExportDir = def.RLHFExportDir
	}
	if strings.TrimSpace(s.ConfigDir) == "" {
		s.ConfigDir = def.ConfigDir
	}
	if strings.TrimSpace(s.StateFile) == "" {
		s.StateFile = def.StateFile
	}
}

// SanitizeOllama normalizes the base URL and retry settings.
func (cfg *Config) SanitizeOllama() {
	o := &cfg.Ollama
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = "http://localhost:11434"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = 1
	}
	if cfg.Assistant.DefaultMaxTokens <= 0 {
		cfg.Assistant.DefaultMaxTokens = 1024
	}
	if cfg.Assistant.ConversationHistoryLimit <= 0 {
		cfg.Assistant.ConversationHistoryLimit = 100
	}
	if cfg.GroupDiscussion.Name == "" {
		cfg.GroupDiscussion.Name = "group_discussion"
	}
	if cfg.GroupDiscussion.DefaultRounds <= 0 {
		cfg.GroupDiscussion.DefaultRounds = 2
	}
}

// SanitizeOptimization clamps probabilities, weights and the template strategy.
func (cfg *Config) SanitizeOptimization() {
	fb := &cfg.Optimization.Feedback
	fb.CollectionProbability = clamp(fb.CollectionProbability, 0, 1)
	if fb.FeedbackCacheSize <= 0 {
		fb.FeedbackCacheSize = 1000
	}

	p := &cfg.Optimization.Preference
	if p.MinWeight <= 0 {
		p.MinWeight = 0.5
	}
	if p.MaxWeight <= 0 {
		p.MaxWeight = 2.0
	}
	if p.MinWeight > p.MaxWeight {
		p.MinWeight, p.MaxWeight = p.MaxWeight, p.MinWeight
	}
	if p.DefaultWeight <= 0 {
		p.DefaultWeight = 1.0
	}
	p.DefaultWeight = clamp(p.DefaultWeight, p.MinWeight, p.MaxWeight)
	if p.WeightUpdateFactor < 0 {
		p.WeightUpdateFactor = 0
	}
	p.WinRateWeight = clamp(p.WinRateWeight, 0, 1)
	p.ScoreWeight = clamp(p.ScoreWeight, 0, 1)

	po := &cfg.Optimization.PromptOptimization
	switch strings.ToLower(strings.TrimSpace(po.TemplateSelectionStrategy)) {
	case StrategyPerformanceBased:
		po.TemplateSelectionStrategy = StrategyPerformanceBased
	default:
		po.TemplateSelectionStrategy = StrategyBestMatch
	}
	if po.MaxPromptTokenCount < 0 {
		po.MaxPromptTokenCount = 0
	}

	rules := po.Directives[:0]
	for _, r := range po.Directives {
		r.When = strings.TrimSpace(r.When)
		r.Text = strings.TrimSpace(r.Text)
		if r.When == "" || r.Text == "" {
			continue
		}
		rules = append(rules, r)
	}
	po.Directives = rules
}

// SanitizeAPI applies the environment override for the API key and
// defaults the listen address.
func (cfg *Config) SanitizeAPI() {
	if key := strings.TrimSpace(os.Getenv("LOCALASSIST_API_KEY")); key != "" {
		if looksLikeBcrypt(key) {
			cfg.API.APIKey = key
		} else if hashed, err := HashAPIKey(key); err == nil {
			cfg.API.APIKey = hashed
		}
	}
	if strings.TrimSpace(cfg.API.Host) == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		cfg.API.Port = 8000
	}
	cfg.Archive.Prefix = strings.Trim(cfg.Archive.Prefix, "/")
}

// Addr returns host:port for the API server.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
