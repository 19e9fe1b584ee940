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

// Package handler owns the per-task LLM conversation: one Session per
// atomic task execution, holding the history, the resource meter and the
// tool registry. The Session is the only code allowed to mutate the
// conversation history.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/llm"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/tool"
	"github.com/mrivas-oss/taskrt/utils"
)

// State is the session's position in its lifecycle. Terminal states are
// StateComplete and StateFailed; StateContinuationPending waits for the
// Subtask Loop to stitch a tool response back in.
type State string

const (
	StateReady               State = "READY"
	StateCallingLLM          State = "CALLING_LLM"
	StateComplete            State = "COMPLETE"
	StateContinuationPending State = "CONTINUATION_PENDING"
	StateFailed              State = "FAILED"
)

// ContinuePrompt is the fixed user message sent when resuming a turn
// after a subtask's result has been added as a tool response.
const ContinuePrompt = "Continue based on the tool results."

// directToolConcurrency bounds the fan-out when one assistant turn
// requests several independent direct tools.
const directToolConcurrency = 4

// Config assembles a Session's collaborators.
type Config struct {
	Provider       llm.Provider
	Tools          *tool.Registry
	Meter          *ResourceMeter
	BasePrompt     string
	TemplateSystem string
	Logger         *slog.Logger
}

type pendingToolCall struct {
	id       string
	name     string
	answered bool
}

// Session is one conversation with one LLM.
type Session struct {
	id             string
	provider       llm.Provider
	tools          *tool.Registry
	meter          *ResourceMeter
	counter        *utils.TokenCounter
	basePrompt     string
	templateSystem string
	contextBlock   string
	history        []llm.Message
	state          State
	pending        *pendingToolCall
	activeSubtask  string
	log            *slog.Logger
}

// NewSession builds a READY session. The token counter degrades to a
// rough estimate when the model is unknown to tiktoken.
func NewSession(cfg Config) *Session {
	counter, err := utils.NewTokenCounter(cfg.Provider.GetModelName())
	if err != nil {
		counter = nil
	}
	id := uuid.NewString()
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Session{
		id:             id,
		provider:       cfg.Provider,
		tools:          cfg.Tools,
		meter:          cfg.Meter,
		counter:        counter,
		basePrompt:     cfg.BasePrompt,
		templateSystem: cfg.TemplateSystem,
		state:          StateReady,
		log:            log.With("session", id),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Meter exposes the session's resource meter.
func (s *Session) Meter() *ResourceMeter { return s.meter }

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// PrimeDataContext installs the context block the Context Resolver
// assembled for this task. It becomes part of the system prompt.
func (s *Session) PrimeDataContext(contextBlock string) {
	s.contextBlock = contextBlock
}

// Reset clears the conversation and returns the session to READY. The
// meter is deliberately not reset: limits span the whole task.
func (s *Session) Reset() {
	s.history = nil
	s.pending = nil
	s.activeSubtask = ""
	s.state = StateReady
}

// RegisterTool adds a tool to this session's registry.
func (s *Session) RegisterTool(name string, entry tool.Entry) error {
	return s.tools.Register(name, entry)
}

// SystemPrompt concatenates, in fixed order: the base prompt, the
// template's system text, the resolved data context, and the tool
// directives.
func (s *Session) SystemPrompt() string {
	var parts []string
	if s.basePrompt != "" {
		parts = append(parts, s.basePrompt)
	}
	if s.templateSystem != "" {
		parts = append(parts, s.templateSystem)
	}
	if s.contextBlock != "" {
		parts = append(parts, s.contextBlock)
	}
	if directives := s.toolDirectives(); directives != "" {
		parts = append(parts, directives)
	}
	return strings.Join(parts, "\n\n")
}

func (s *Session) toolDirectives() string {
	if s.tools == nil {
		return ""
	}
	schemas := s.tools.Schemas()
	if len(schemas) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You may call the following tools:")
	for _, sc := range schemas {
		fmt.Fprintf(&b, "\n- %s: %s", sc.Name, sc.Description)
	}
	return b.String()
}

func (s *Session) toolDefinitions() []llm.ToolDefinition {
	if s.tools == nil {
		return nil
	}
	schemas := s.tools.Schemas()
	defs := make([]llm.ToolDefinition, 0, len(schemas))
	for _, sc := range schemas {
		props := make(map[string]any, len(sc.Params))
		var required []string
		for _, p := range sc.Params {
			prop := map[string]any{"type": p.Type}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        sc.Name,
			Description: sc.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return defs
}

// AddToolResponse appends a tool-response message for the pending tool
// call. It may be called at most once per pending call, and only while
// the session is CONTINUATION_PENDING.
func (s *Session) AddToolResponse(toolName, content string) error {
	if s.state != StateContinuationPending {
		return fmt.Errorf("session %s: no continuation pending (state %s)", s.id, s.state)
	}
	if s.pending == nil || s.pending.answered {
		return fmt.Errorf("session %s: tool call already answered", s.id)
	}
	s.history = append(s.history, llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: s.pending.id,
		ToolName:   toolName,
	})
	s.pending.answered = true
	s.activeSubtask = ""
	s.state = StateReady
	return nil
}

// ExecutePrompt performs one prompt turn: it appends the user message,
// runs the pre-call resource check, calls the provider, dispatches any
// direct tool calls inline, and either completes or hands a
// CONTINUATION back to the caller when a subtask tool fires.
func (s *Session) ExecutePrompt(ctx context.Context, prompt string) *core.TaskResult {
	if s.state != StateReady {
		was := s.state
		s.state = StateFailed
		return core.Failed(core.ReasonUnexpectedError,
			fmt.Sprintf("execute_prompt called in state %s", was), nil)
	}

	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: prompt})

	var lastText string
	for {
		messages := s.buildMessages()
		promptTokens := s.estimateTokens(messages)

		if res := s.meter.CheckBeforeCall(promptTokens, lastText); res != nil {
			s.state = StateFailed
			return res
		}

		s.state = StateCallingLLM
		resp, err := s.provider.Generate(ctx, messages, s.toolDefinitions())
		if err != nil {
			s.state = StateFailed
			if ctx.Err() != nil {
				return core.Failed(core.ReasonExecutionHalted, "cancelled: "+ctx.Err().Error(),
					map[string]any{"partial_output": lastText})
			}
			return core.Failed(core.ReasonUnexpectedError, err.Error(), nil)
		}

		s.meter.RecordTurn(promptTokens, resp.TokensUsed)
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})
		lastText = resp.Text

		if len(resp.ToolCalls) == 0 {
			s.state = StateComplete
			return &core.TaskResult{Status: core.StatusComplete, Content: resp.Text, Notes: core.Notes{}}
		}

		direct, subtask, failure := s.partitionToolCalls(resp.ToolCalls)
		if failure != nil {
			s.state = StateFailed
			return failure
		}

		if len(direct) > 0 {
			if res := s.runDirectTools(ctx, direct); res != nil {
				s.state = StateFailed
				return res
			}
		}

		if subtask != nil {
			req, err := s.buildSubtask(ctx, *subtask)
			if err != nil {
				s.state = StateFailed
				return core.Failed(core.ReasonInputValidationFailure, err.Error(), nil)
			}
			s.pending = &pendingToolCall{id: subtask.ID, name: subtask.Name}
			s.activeSubtask = req.Signature()
			s.state = StateContinuationPending
			return core.Continuation(resp.Text, req)
		}

		// Only direct tools this turn: the turn continues with another
		// provider call over the grown history.
		s.state = StateReady
	}
}

func (s *Session) buildMessages() []llm.Message {
	messages := make([]llm.Message, 0, len(s.history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.SystemPrompt()})
	messages = append(messages, s.history...)
	return messages
}

func (s *Session) estimateTokens(messages []llm.Message) int {
	pairs := make([][2]string, len(messages))
	for i, m := range messages {
		pairs[i] = [2]string{string(m.Role), m.Content}
	}
	return s.counter.CountConversation(pairs)
}

// partitionToolCalls splits a turn's tool calls into direct calls and at
// most one subtask call. Additional subtask calls in the same turn are
// rejected: their results could not be stitched back deterministically.
func (s *Session) partitionToolCalls(calls []llm.ToolCall) (direct []llm.ToolCall, subtask *llm.ToolCall, failure *core.TaskResult) {
	for i := range calls {
		call := calls[i]
		entry, ok := s.tools.Find(call.Name)
		if !ok {
			return nil, nil, core.Failed(core.ReasonIdentifierNotFound,
				fmt.Sprintf("tool %q is not registered", call.Name), nil)
		}
		switch entry.Kind {
		case tool.KindSubtask:
			if subtask != nil {
				return nil, nil, core.Failed(core.ReasonInputValidationFailure,
					"at most one subtask tool call is allowed per turn", nil)
			}
			subtask = &call
		default:
			direct = append(direct, call)
		}
	}
	return direct, subtask, nil
}

// runDirectTools executes independent direct tools concurrently but
// appends their responses to the history in the order the model
// requested them.
func (s *Session) runDirectTools(ctx context.Context, calls []llm.ToolCall) *core.TaskResult {
	type outcome struct {
		content string
		err     error
	}
	outcomes := make([]outcome, len(calls))

	var wg sync.WaitGroup
	sem := make(chan struct{}, directToolConcurrency)
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			args, err := decodeToolArgs(calls[i].Args)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			content, err := s.tools.Execute(ctx, calls[i].Name, args)
			outcomes[i] = outcome{content: content, err: err}
		}(i)
	}
	wg.Wait()

	for i, call := range calls {
		content := outcomes[i].content
		if err := outcomes[i].err; err != nil {
			// Tool errors are surfaced to the model, not fatal to the turn.
			content = fmt.Sprintf("error: %v", err)
			s.log.Warn("direct tool failed", "tool", call.Name, "error", err)
		}
		s.history = append(s.history, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return nil
}

func (s *Session) buildSubtask(ctx context.Context, call llm.ToolCall) (*core.SubtaskRequest, error) {
	entry, _ := s.tools.Find(call.Name)
	if entry.Subtask == nil {
		return nil, fmt.Errorf("subtask tool %q has no builder", call.Name)
	}
	args, err := decodeToolArgs(call.Args)
	if err != nil {
		return nil, err
	}
	req, err := entry.Subtask(ctx, args)
	if err != nil {
		return nil, err
	}
	if req.ToolCallName == "" {
		req.ToolCallName = call.Name
	}
	return req, nil
}

func decodeToolArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	return args, nil
}
