// Copyright 2025 The Taskrt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package utils holds small shared helpers with no dependency on the
// rest of the runtime. Currently: token counting for the resource meter.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts prompt tokens for a given model. Counts for
// non-OpenAI models are approximations (cl100k_base), which is adequate
// for budget enforcement: the meter compares against a configurable
// fraction of the context window, not an exact ceiling.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenCounter builds a counter for model, falling back to the
// cl100k_base encoding when the model is unknown to tiktoken.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: enc, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}
	encodingCache[model] = enc
	return &TokenCounter{encoding: enc, model: model}, nil
}

// Count returns the token count for text. Safe on a nil counter, where
// it degrades to the rough 4-characters-per-token estimate.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountConversation counts tokens across role/content pairs, including
// the per-message framing overhead and the reply priming.
func (tc *TokenCounter) CountConversation(pairs [][2]string) int {
	// <|start|>role ... <|end|> framing per message, plus reply priming.
	const tokensPerMessage = 3
	total := tokensPerMessage
	for _, p := range pairs {
		total += tokensPerMessage
		total += tc.Count(p[0])
		total += tc.Count(p[1])
	}
	return total
}

// Model returns the model name this counter was built for.
func (tc *TokenCounter) Model() string {
	if tc == nil {
		return ""
	}
	return tc.model
}

// EstimateTokens is the dependency-free fallback: roughly four
// characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
