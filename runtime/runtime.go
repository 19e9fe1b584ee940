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

// Package runtime wires the subsystems into one process-wide context
// object: registries, file index, matcher, resolver, executor,
// evaluator and dispatcher. Tests construct a fresh Runtime per run
// instead of mutating globals.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrivas-oss/taskrt/config"
	"github.com/mrivas-oss/taskrt/contextres"
	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/dispatch"
	"github.com/mrivas-oss/taskrt/executor"
	"github.com/mrivas-oss/taskrt/llm"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/matcher"
	"github.com/mrivas-oss/taskrt/sexp"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// Runtime is the assembled orchestrator.
type Runtime struct {
	Config     *config.Config
	Index      *core.FileIndex
	Templates  *template.Registry
	Tools      *tool.Registry
	Provider   llm.Provider
	Executor   *executor.Executor
	Evaluator  *sexp.Evaluator
	Dispatcher *dispatch.Dispatcher

	log *slog.Logger
}

// New builds a Runtime from cfg. Initialisation failures (missing
// credentials, malformed template files) are the one place the system
// returns errors instead of FAILED results.
func New(cfg *config.Config) (*Runtime, error) {
	log := logger.Get()

	index := core.NewFileIndex()
	if cfg.IndexFile != "" {
		if err := config.LoadIndex(cfg.IndexFile, index); err != nil {
			return nil, err
		}
	}

	templates := template.NewRegistry()
	if err := config.LoadTemplates(cfg.TemplateFiles, templates); err != nil {
		return nil, err
	}

	tools := tool.NewRegistry()
	if err := tool.Builtins(tools, cfg.Workdir); err != nil {
		return nil, err
	}
	if err := tool.RegisterSpawnSubtask(tools); err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg, cfg.Model)
	if err != nil {
		return nil, err
	}

	idx := matcher.NewIndexMatcher(index)
	resolver := contextres.NewResolver(contextres.Config{
		Matcher: idx,
		Shell:   tool.RunScript(tool.ShellConfig{WorkingDirectory: cfg.Workdir}),
		Logger:  log,
	})

	exec := executor.New(executor.Config{
		Templates:  templates,
		Tools:      tools,
		Resolver:   resolver,
		Provider:   provider,
		BasePrompt: cfg.BasePrompt,
		Limits: executor.Limits{
			MaxTurns:      cfg.MaxTurns,
			TokensLimit:   cfg.TokensLimit,
			MaxWindowFrac: cfg.MaxTokensFraction,
			MaxDepth:      cfg.MaxDepth,
		},
		ProviderFor: func(model string) (llm.Provider, error) {
			return newProvider(cfg, model)
		},
		Logger: log,
	})

	evaluator := sexp.New(sexp.Config{
		Templates: templates,
		Tools:     tools,
		Runner:    exec,
		Matcher:   idx,
		Logger:    log,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Templates: templates,
		Tools:     tools,
		Runner:    exec,
		Evaluator: evaluator,
		Logger:    log,
	})

	return &Runtime{
		Config:     cfg,
		Index:      index,
		Templates:  templates,
		Tools:      tools,
		Provider:   provider,
		Executor:   exec,
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		log:        log,
	}, nil
}

// Dispatch routes one request through the Dispatcher.
func (r *Runtime) Dispatch(ctx context.Context, input string) *core.TaskResult {
	return r.Dispatcher.Dispatch(ctx, input)
}

func newProvider(cfg *config.Config, model string) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (ANTHROPIC_API_KEY)")
		}
		return llm.NewAnthropicProvider(llm.AnthropicConfig{APIKey: cfg.APIKey, Model: model}), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key (OPENAI_API_KEY)")
		}
		return llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: cfg.APIKey, Model: model}), nil
	case "gemini":
		return llm.NewGeminiProvider(llm.GeminiConfig{APIKey: cfg.APIKey, Model: model})
	case "mock":
		return newMockProvider(model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newMockProvider echoes the last user message, enough for offline
// smoke tests of the full pipeline.
func newMockProvider(model string) llm.Provider {
	if model == "" {
		model = "mock"
	}
	return &llm.ScriptedProvider{
		ModelName: model,
		GenerateFunc: func(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
			for i := len(messages) - 1; i >= 0; i-- {
				if messages[i].Role == llm.RoleUser {
					return llm.Response{Text: messages[i].Content}, nil
				}
			}
			return llm.Response{Text: ""}, nil
		},
	}
}
