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

package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/llm"
	"github.com/mrivas-oss/taskrt/tool"
)

func newTestTools(t *testing.T) *tool.Registry {
	t.Helper()
	tools := tool.NewRegistry()
	require.NoError(t, tools.Register("shout", tool.Entry{
		Schema: tool.Schema{
			Name:        "shout",
			Description: "uppercase the text",
			Params:      []tool.Param{{Name: "text", Type: "string", Required: true}},
		},
		Kind: tool.KindDirect,
		Executor: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "LOUD:" + text, nil
		},
	}))
	require.NoError(t, tool.RegisterSpawnSubtask(tools))
	return tools
}

func newTestSession(t *testing.T, provider llm.Provider, turnsLimit int) *Session {
	t.Helper()
	return NewSession(Config{
		Provider:   provider,
		Tools:      newTestTools(t),
		Meter:      NewResourceMeter(turnsLimit, 0, 0, 0),
		BasePrompt: "You are a task runner.",
	})
}

func TestSession_CompleteTurn(t *testing.T) {
	provider := &llm.ScriptedProvider{Script: []llm.Response{{Text: "done", TokensUsed: 5}}}
	s := newTestSession(t, provider, 5)

	res := s.ExecutePrompt(context.Background(), "do the thing")
	require.Equal(t, core.StatusComplete, res.Status)
	assert.Equal(t, "done", res.Content)
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, 1, s.Meter().TurnsUsed())

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
}

func TestSession_DirectToolContinuesTurn(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"text": "hi"})
	provider := &llm.ScriptedProvider{Script: []llm.Response{
		{Text: "let me check", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "shout", Args: args}}},
		{Text: "final answer"},
	}}
	s := newTestSession(t, provider, 5)

	res := s.ExecutePrompt(context.Background(), "go")
	require.Equal(t, core.StatusComplete, res.Status)
	assert.Equal(t, "final answer", res.Content)
	assert.Equal(t, 2, s.Meter().TurnsUsed())

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
	assert.Equal(t, llm.RoleTool, history[2].Role)
	assert.Equal(t, "LOUD:hi", history[2].Content)
	assert.Equal(t, "c1", history[2].ToolCallID)
	assert.Equal(t, llm.RoleAssistant, history[3].Role)
}

func TestSession_SubtaskToolReturnsContinuation(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"name": "child", "inputs": map[string]any{"x": "1"}})
	provider := &llm.ScriptedProvider{Script: []llm.Response{
		{Text: "spawning", ToolCalls: []llm.ToolCall{{ID: "c1", Name: tool.SpawnSubtaskToolName, Args: args}}},
		{Text: "answer=42"},
	}}
	s := newTestSession(t, provider, 5)

	res := s.ExecutePrompt(context.Background(), "parent prompt")
	require.Equal(t, core.StatusContinuation, res.Status)
	assert.Equal(t, StateContinuationPending, s.State())

	req := res.Notes.SubtaskRequest()
	require.NotNil(t, req)
	assert.Equal(t, "child", req.Name)

	// The subtask loop folds the child's content back in and resumes.
	require.NoError(t, s.AddToolResponse(tool.SpawnSubtaskToolName, "42"))
	final := s.ExecutePrompt(context.Background(), ContinuePrompt)
	require.Equal(t, core.StatusComplete, final.Status)
	assert.Equal(t, "answer=42", final.Content)

	history := s.History()
	require.Len(t, history, 5)
	assert.Equal(t, llm.RoleUser, history[0].Role)      // parent prompt
	assert.Equal(t, llm.RoleAssistant, history[1].Role) // continuation turn
	assert.Equal(t, llm.RoleTool, history[2].Role)      // stitched subtask result
	assert.Equal(t, "42", history[2].Content)
	assert.Equal(t, llm.RoleUser, history[3].Role)      // continue prompt
	assert.Equal(t, llm.RoleAssistant, history[4].Role) // final turn
}

func TestSession_AddToolResponseOnlyWhilePending(t *testing.T) {
	provider := &llm.ScriptedProvider{Script: []llm.Response{{Text: "done"}}}
	s := newTestSession(t, provider, 5)

	require.Error(t, s.AddToolResponse("shout", "nope"))
	s.ExecutePrompt(context.Background(), "go")
	require.Error(t, s.AddToolResponse("shout", "still no"))
}

func TestSession_TurnLimitShortCircuits(t *testing.T) {
	provider := &llm.ScriptedProvider{Script: []llm.Response{{Text: "never reached"}}}
	s := newTestSession(t, provider, 1)
	s.Meter().RecordTurn(1, 1)

	res := s.ExecutePrompt(context.Background(), "go")
	require.Equal(t, core.StatusFailed, res.Status)
	e := res.Notes.Error()
	require.NotNil(t, e)
	assert.Equal(t, core.ErrorResourceExhaustion, e.Type)
	assert.Empty(t, provider.Requests)
}

func TestSession_SystemPromptOrder(t *testing.T) {
	provider := &llm.ScriptedProvider{Script: []llm.Response{{Text: "ok"}}}
	s := NewSession(Config{
		Provider:       provider,
		Tools:          newTestTools(t),
		Meter:          NewResourceMeter(5, 0, 0, 0),
		BasePrompt:     "BASE",
		TemplateSystem: "TEMPLATE",
	})
	s.PrimeDataContext("CONTEXT")

	sp := s.SystemPrompt()
	baseIdx := strings.Index(sp, "BASE")
	tmplIdx := strings.Index(sp, "TEMPLATE")
	ctxIdx := strings.Index(sp, "CONTEXT")
	toolIdx := strings.Index(sp, "You may call the following tools")
	assert.True(t, baseIdx < tmplIdx && tmplIdx < ctxIdx && ctxIdx < toolIdx,
		"system prompt sections out of order: %s", sp)
}
