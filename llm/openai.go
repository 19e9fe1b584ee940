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
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// OpenAIProvider implements Provider over go-openai's non-streaming
// CreateChatCompletion call.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider constructs a provider against the real OpenAI API.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

func (p *OpenAIProvider) GetModelName() string { return p.model }
func (p *OpenAIProvider) GetMaxTokens() int    { return p.maxTokens }

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case RoleUser:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case RoleAssistant:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case RoleTool:
			converted = append(converted, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.ToolName,
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: converted,
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if len(tools) > 0 {
		req.Tools = adaptOpenAITools(tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("openai: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: empty response")
	}

	choice := resp.Choices[0].Message
	calls := make([]ToolCall, len(choice.ToolCalls))
	for i, tc := range choice.ToolCalls {
		calls[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: json.RawMessage(tc.Function.Arguments)}
	}

	return Response{
		Text:       choice.Content,
		ToolCalls:  calls,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func adaptOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}
