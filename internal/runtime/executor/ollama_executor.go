// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/util"
)

// OllamaExecutor provides integration with a locally running Ollama instance.
// It communicates via HTTP to the Ollama API (default: http://localhost:11434).
type OllamaExecutor struct {
	baseURL    string
	client     *http.Client
	retries    int
	retryDelay time.Duration

	mu    sync.RWMutex
	stats map[string]ModelStats
}

// NewOllamaExecutor creates a new executor for Ollama.
func NewOllamaExecutor(cfg config.OllamaConfig) *OllamaExecutor {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.RetryAttempts
	if retries < 1 {
		retries = 1
	}
	return &OllamaExecutor{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		retries:    retries,
		retryDelay: time.Second,
		stats:      make(map[string]ModelStats),
	}
}

// Identifier names the backend.
func (e *OllamaExecutor) Identifier() string { return "ollama" }

// BaseURL returns the server address requests are sent to.
func (e *OllamaExecutor) BaseURL() string { return e.baseURL }

// Generate posts req to /api/generate with streaming disabled. Timeouts and
// 5xx answers are retried up to the configured number of attempts.
func (e *OllamaExecutor) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	body, err := buildGeneratePayload(req)
	if err != nil {
		return GenerateResult{}, err
	}
	log.Debugf("Ollama request: model=%s prompt_len=%d", req.Model, len(req.Prompt))

	start := time.Now()
	var raw []byte
	for attempt := 1; attempt <= e.retries; attempt++ {
		raw, err = e.post(ctx, "/api/generate", body)
		if err == nil {
			break
		}
		if !retryable(err) || attempt == e.retries || ctx.Err() != nil {
			break
		}
		log.Warnf("Ollama request failed (attempt %d/%d): %v", attempt, e.retries, err)
		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return GenerateResult{}, ctx.Err()
		}
	}
	if err != nil {
		if retryable(err) {
			return GenerateResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return GenerateResult{}, err
	}

	elapsed := time.Since(start)
	res := GenerateResult{
		Model:    req.Model,
		Response: gjson.GetBytes(raw, "response").String(),
		Tokens:   int(gjson.GetBytes(raw, "eval_count").Int()),
		Duration: elapsed,
	}
	if msg := gjson.GetBytes(raw, "error"); msg.Exists() {
		return GenerateResult{}, fmt.Errorf("Ollama error: %s", msg.String())
	}
	e.record(req.Model, elapsed, res.Tokens)

	log.Debugf("Ollama response: model=%s, content_len=%d, tokens=%d", req.Model, len(res.Response), res.Tokens)
	return res, nil
}

// ListModels returns the model tags installed on the server.
func (e *OllamaExecutor) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	raw, err := e.do(httpReq)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("failed to parse Ollama model list")
	}
	var names []string
	for _, name := range gjson.GetBytes(raw, "models.#.name").Array() {
		if n := name.String(); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// Stats returns a copy of the per-model latency statistics.
func (e *OllamaExecutor) Stats() map[string]ModelStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]ModelStats, len(e.stats))
	for k, v := range e.stats {
		out[k] = v
	}
	return out
}

// ResetStats drops all latency statistics.
func (e *OllamaExecutor) ResetStats() {
	e.mu.Lock()
	e.stats = make(map[string]ModelStats)
	e.mu.Unlock()
}

func (e *OllamaExecutor) record(model string, elapsed time.Duration, tokens int) {
	e.mu.Lock()
	e.stats[model] = e.stats[model].add(elapsed, tokens)
	e.mu.Unlock()
}

func (e *OllamaExecutor) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return e.do(httpReq)
}

func (e *OllamaExecutor) do(httpReq *http.Request) ([]byte, error) {
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: util.Truncate(strings.TrimSpace(string(data)), 200)}
	}
	return data, nil
}

// buildGeneratePayload renders req as an Ollama generate body.
func buildGeneratePayload(req GenerateRequest) ([]byte, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	body := []byte(`{"stream":false}`)
	var err error
	set := func(path string, v interface{}) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("model", req.Model)
	set("prompt", req.Prompt)
	if req.System != "" {
		set("system", req.System)
	}
	if req.Temperature > 0 {
		set("options.temperature", req.Temperature)
	}
	if req.MaxTokens > 0 {
		set("options.num_predict", req.MaxTokens)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build Ollama request: %w", err)
	}
	return body, nil
}

func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
