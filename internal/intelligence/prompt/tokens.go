// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package prompt

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// Token counting methods.
const (
	MethodSimple   = "simple"
	MethodTiktoken = "tiktoken"
)

// TokenCounter counts prompt tokens, either exactly with the cl100k_base
// encoding or with a words * 1.3 approximation.
type TokenCounter struct {
	method string

	once  sync.Once
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter for method. Unknown methods fall back
// to the simple estimate.
func NewTokenCounter(method string) *TokenCounter {
	if method != MethodSimple && method != MethodTiktoken {
		method = MethodSimple
	}
	return &TokenCounter{method: method}
}

// Method returns the effective counting method.
func (tc *TokenCounter) Method() string {
	return tc.method
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc.method == MethodTiktoken {
		if codec := tc.loadCodec(); codec != nil {
			ids, _, err := codec.Encode(text)
			if err == nil {
				return len(ids)
			}
			log.Debugf("tiktoken encode failed, using estimate: %v", err)
		}
	}
	return simpleEstimate(text)
}

func (tc *TokenCounter) loadCodec() tokenizer.Codec {
	tc.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("cl100k_base encoding unavailable, falling back to estimates: %v", err)
			return
		}
		tc.codec = codec
	})
	return tc.codec
}

// simpleEstimate approximates subword tokenization at 1.3 tokens per word.
func simpleEstimate(content string) int {
	words := 0
	inWord := false
	for _, r := range content {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return int(float64(words) * 1.3)
}
