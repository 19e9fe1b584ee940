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

// Package executor runs atomic tasks: one template, one handler
// session, one LLM conversation. It also owns the subtask loop that
// turns a CONTINUATION result into a recursive child execution whose
// content is stitched back into the parent turn as a tool response.
package executor

import (
	"context"
	"log/slog"

	"github.com/mrivas-oss/taskrt/contextres"
	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/handler"
	"github.com/mrivas-oss/taskrt/llm"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// Limits carries the per-session resource limits derived from the
// environment at startup.
type Limits struct {
	MaxTurns      int
	TokensLimit   int
	MaxWindowFrac float64
	MaxDepth      int
}

// Config assembles an Executor.
type Config struct {
	Templates  *template.Registry
	Tools      *tool.Registry
	Resolver   *contextres.Resolver
	Provider   llm.Provider
	BasePrompt string
	Limits     Limits

	// ProviderFor, when set, supplies a provider for a template's model
	// override. Falling back to the default provider keeps a missing
	// override from failing the task.
	ProviderFor func(model string) (llm.Provider, error)

	Logger *slog.Logger
}

// Executor is the atomic task executor.
type Executor struct {
	templates   *template.Registry
	tools       *tool.Registry
	resolver    *contextres.Resolver
	provider    llm.Provider
	basePrompt  string
	limits      Limits
	providerFor func(model string) (llm.Provider, error)
	log         *slog.Logger
}

// New builds an Executor from cfg.
func New(cfg Config) *Executor {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	limits := cfg.Limits
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = core.DefaultMaxDepth
	}
	return &Executor{
		templates:   cfg.Templates,
		tools:       cfg.Tools,
		resolver:    cfg.Resolver,
		provider:    cfg.Provider,
		basePrompt:  cfg.BasePrompt,
		limits:      limits,
		providerFor: cfg.ProviderFor,
		log:         log,
	}
}

// Execute runs a SubtaskRequest to a terminal TaskResult. All nested
// subtask spawns share one call stack for depth and cycle accounting.
func (e *Executor) Execute(ctx context.Context, req *core.SubtaskRequest) *core.TaskResult {
	maxDepth := req.EffectiveMaxDepth()
	if req.MaxDepth <= 0 && e.limits.MaxDepth > 0 {
		maxDepth = e.limits.MaxDepth
	}
	return e.execute(ctx, req, newCallStack(maxDepth), nil)
}

func (e *Executor) execute(ctx context.Context, req *core.SubtaskRequest, stack *callStack, parent *contextres.ParentContext) *core.TaskResult {
	tmpl, failure := e.lookupTemplate(req)
	if failure != nil {
		return failure
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	if err := tmpl.ValidateInputs(inputs); err != nil {
		return core.Failed(core.ReasonInputValidationFailure, err.Error(), nil)
	}

	resolution, failed := e.resolver.Resolve(ctx, tmpl, req, parent)
	if failed != nil {
		return failed
	}

	instructions, err := template.Substitute(tmpl.Instructions, inputs)
	if err != nil {
		return core.Failed(core.ReasonInputValidationFailure, err.Error(), nil)
	}
	system, err := template.Substitute(tmpl.System, inputs)
	if err != nil {
		return core.Failed(core.ReasonInputValidationFailure, err.Error(), nil)
	}

	session := e.newSession(tmpl, system)
	session.PrimeDataContext(resolution.ContextString)

	result := session.ExecutePrompt(ctx, instructions)
	result = e.subtaskLoop(ctx, session, result, stack, resolution)
	result = e.applyOutputFormat(tmpl, result)

	if result.Notes == nil {
		result.Notes = core.Notes{}
	}
	result.Notes["template_used"] = tmpl.Name
	result.Notes["context_source"] = string(resolution.Source)
	result.Notes["context_files_count"] = resolution.FilesCount
	return result
}

func (e *Executor) lookupTemplate(req *core.SubtaskRequest) (*template.Template, *core.TaskResult) {
	identifier := req.Name
	if identifier == "" {
		identifier = req.Subtype
	}
	if identifier == "" {
		return nil, core.Failed(core.ReasonInputValidationFailure,
			"subtask request needs a name or subtype", nil)
	}
	tmpl, ok := e.templates.Find(identifier)
	if !ok {
		return nil, core.Failed(core.ReasonIdentifierNotFound,
			"no atomic task registered as "+identifier, nil)
	}
	return tmpl, nil
}

func (e *Executor) newSession(tmpl *template.Template, system string) *handler.Session {
	provider := e.provider
	if tmpl.Model != "" && e.providerFor != nil {
		if p, err := e.providerFor(tmpl.Model); err == nil {
			provider = p
		} else {
			e.log.Warn("model override unavailable, using default provider",
				"model", tmpl.Model, "error", err)
		}
	}

	meter := handler.NewResourceMeter(
		e.limits.MaxTurns,
		e.limits.TokensLimit,
		provider.GetMaxTokens(),
		e.limits.MaxWindowFrac,
	)
	log := e.log
	meter.SetWarnFunc(func(resource core.ExhaustedResource, fraction float64) {
		log.Warn("resource usage crossed warn threshold",
			"resource", string(resource), "fraction", fraction)
	})

	return handler.NewSession(handler.Config{
		Provider:       provider,
		Tools:          e.tools,
		Meter:          meter,
		BasePrompt:     e.basePrompt,
		TemplateSystem: system,
		Logger:         e.log,
	})
}

// subtaskLoop drives CONTINUATION results: spawn the requested child,
// fold its content back as a tool response, continue the parent turn.
// Depth and cycle limits are checked before each spawn, never after an
// LLM call has been made for it.
func (e *Executor) subtaskLoop(ctx context.Context, session *handler.Session, result *core.TaskResult, stack *callStack, resolution *contextres.Resolution) *core.TaskResult {
	var accumulated []contextres.StepOutput
	var history []*core.TaskResult

	for result.Status == core.StatusContinuation {
		sub := result.Notes.SubtaskRequest()
		if sub == nil {
			return core.Failed(core.ReasonUnexpectedError,
				"continuation without a subtask_request", nil)
		}

		if halted := stack.push(sub); halted != nil {
			return halted
		}

		parent := &contextres.ParentContext{
			ContextString: resolution.ContextString,
			FilePaths:     resolution.FilePaths,
			Accumulated:   accumulated,
		}
		child := e.execute(ctx, sub, stack, parent)
		stack.pop(sub)

		history = append(history, child)
		accumulated = append(accumulated, contextres.StepOutput{
			Status:  child.Status,
			Content: child.Content,
			Notes:   child.Notes,
		})

		if child.Status == core.StatusFailed {
			// A depth or cycle halt is a workflow-level stop, surfaced
			// unchanged; any other child failure is wrapped for the
			// parent's caller.
			if childErr := child.Notes.Error(); childErr != nil && childErr.Reason == core.ReasonExecutionHalted {
				return child
			}
			return core.WrapSubtaskFailure(sub, child.Notes.Error(), stack.depth(), result.Content)
		}

		toolName := sub.ToolCallName
		if toolName == "" {
			toolName = tool.SpawnSubtaskToolName
		}
		if err := session.AddToolResponse(toolName, child.Content); err != nil {
			return core.Failed(core.ReasonUnexpectedError, err.Error(), nil)
		}
		result = session.ExecutePrompt(ctx, handler.ContinuePrompt)
	}

	if len(history) > 0 {
		if result.Notes == nil {
			result.Notes = core.Notes{}
		}
		result.Notes["iteration_history"] = history
	}
	return result
}
