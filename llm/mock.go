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

package llm

import (
	"context"
	"fmt"
)

// ScriptedProvider replays a fixed sequence of responses and records
// every request it receives. It backs tests and the offline "mock"
// provider mode: given the same script and inputs, the orchestrator's
// conversation history is byte-identical across runs.
type ScriptedProvider struct {
	ModelName string
	MaxTokens int

	// Script entries are returned in order; the last entry repeats once
	// the script is exhausted. GenerateFunc, when set, overrides Script.
	Script       []Response
	GenerateFunc func(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)

	// Requests holds a copy of the messages from every Generate call.
	Requests [][]Message

	calls int
}

// Generate implements Provider.
func (p *ScriptedProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	p.Requests = append(p.Requests, recorded)

	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, messages, tools)
	}
	if len(p.Script) == 0 {
		return Response{}, fmt.Errorf("scripted provider has no responses")
	}
	i := p.calls
	if i >= len(p.Script) {
		i = len(p.Script) - 1
	}
	p.calls++
	return p.Script[i], nil
}

// GetModelName implements Provider.
func (p *ScriptedProvider) GetModelName() string {
	if p.ModelName == "" {
		return "mock"
	}
	return p.ModelName
}

// GetMaxTokens implements Provider.
func (p *ScriptedProvider) GetMaxTokens() int {
	if p.MaxTokens <= 0 {
		return 8192
	}
	return p.MaxTokens
}
