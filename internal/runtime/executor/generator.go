// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor talks to the local inference server.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when the inference server cannot be reached
// after all retries.
var ErrUnavailable = errors.New("inference server unavailable")

// GenerateRequest is a single non-streaming completion request.
type GenerateRequest struct {
	Model  string
	Prompt string
	// System overrides the model's built-in system prompt when non-empty.
	System      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the completion returned by a Generator.
type GenerateResult struct {
	Model    string        `json:"model"`
	Response string        `json:"response"`
	Tokens   int           `json:"tokens"`
	Duration time.Duration `json:"duration"`
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// StatusError is a non-2xx answer from the inference server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// ModelStats tracks latency and throughput for one model.
type ModelStats struct {
	Count           int           `json:"count"`
	TotalTime       time.Duration `json:"total_time"`
	TotalTokens     int           `json:"total_tokens"`
	AvgTime         time.Duration `json:"avg_time"`
	AvgTokens       float64       `json:"avg_tokens"`
	TokensPerSecond float64       `json:"tokens_per_second"`
}

func (s ModelStats) add(elapsed time.Duration, tokens int) ModelStats {
	s.Count++
	s.TotalTime += elapsed
	s.TotalTokens += tokens
	s.AvgTime = s.TotalTime / time.Duration(s.Count)
	s.AvgTokens = float64(s.TotalTokens) / float64(s.Count)
	if elapsed > 0 {
		s.TokensPerSecond = float64(tokens) / elapsed.Seconds()
	}
	return s
}
