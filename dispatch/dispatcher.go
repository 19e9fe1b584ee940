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

// Package dispatch routes an incoming request — an S-expression, a
// named atomic task with key=value arguments, or a direct tool call —
// to the right subsystem and formats the terminal result.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/sexp"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// Config assembles a Dispatcher.
type Config struct {
	Templates *template.Registry
	Tools     *tool.Registry
	Runner    sexp.TaskRunner
	Evaluator *sexp.Evaluator
	Logger    *slog.Logger
}

// Dispatcher is the request router.
type Dispatcher struct {
	templates *template.Registry
	tools     *tool.Registry
	runner    sexp.TaskRunner
	evaluator *sexp.Evaluator
	log       *slog.Logger
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Dispatcher{
		templates: cfg.Templates,
		tools:     cfg.Tools,
		runner:    cfg.Runner,
		evaluator: cfg.Evaluator,
		log:       log,
	}
}

// Dispatch routes input to the S-expression evaluator (input starts
// with an opening paren), a named atomic task, or a direct tool, and
// always returns a terminal TaskResult.
func (d *Dispatcher) Dispatch(ctx context.Context, input string) *core.TaskResult {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return parseFailure("empty input")
	}
	if trimmed[0] == '(' {
		return d.dispatchSexp(ctx, trimmed)
	}
	return d.dispatchIdentifier(ctx, trimmed)
}

func (d *Dispatcher) dispatchSexp(ctx context.Context, source string) *core.TaskResult {
	value, err := d.evaluator.EvalString(ctx, source)
	if err != nil {
		switch t := err.(type) {
		case *sexp.ParseError:
			return parseFailure(t.Error())
		case *sexp.Error:
			return core.Failed(t.Reason, t.Message, nil)
		default:
			return core.Failed(core.ReasonUnexpectedError, err.Error(), nil)
		}
	}
	if res, ok := value.(*core.TaskResult); ok {
		return res
	}
	return &core.TaskResult{
		Status:  core.StatusComplete,
		Content: sexp.Format(value),
		Notes:   core.Notes{},
	}
}

func (d *Dispatcher) dispatchIdentifier(ctx context.Context, input string) *core.TaskResult {
	tokens, err := splitArgs(input)
	if err != nil {
		return parseFailure(err.Error())
	}
	return d.DispatchTokens(ctx, tokens)
}

// DispatchTokens routes an already-tokenised identifier request, as
// the CLI produces from argv. The first token starting with an opening
// paren is still handed to the evaluator.
func (d *Dispatcher) DispatchTokens(ctx context.Context, tokens []string) *core.TaskResult {
	if len(tokens) == 0 {
		return parseFailure("empty input")
	}
	if strings.HasPrefix(strings.TrimSpace(tokens[0]), "(") {
		return d.dispatchSexp(ctx, strings.Join(tokens, " "))
	}
	identifier := tokens[0]
	args := tokens[1:]

	wantHelp := false
	var kvArgs []string
	for _, a := range args {
		if a == "--help" {
			wantHelp = true
			continue
		}
		kvArgs = append(kvArgs, a)
	}

	if tmpl, ok := d.templates.Find(identifier); ok {
		if wantHelp {
			return helpResult(tmpl)
		}
		inputs, failure := parseKeyValues(kvArgs)
		if failure != nil {
			return failure
		}
		req := &core.SubtaskRequest{Type: "atomic", Name: tmpl.Name, Inputs: inputs}
		return d.runner.Execute(ctx, req)
	}

	if entry, ok := d.tools.Find(identifier); ok {
		if wantHelp {
			return toolHelpResult(entry.Schema)
		}
		inputs, failure := parseKeyValues(kvArgs)
		if failure != nil {
			return failure
		}
		out, err := d.tools.Execute(ctx, identifier, inputs)
		if err != nil {
			return core.Failed(core.ReasonUnexpectedError, err.Error(), map[string]any{"tool": identifier})
		}
		return &core.TaskResult{Status: core.StatusComplete, Content: out, Notes: core.Notes{}}
	}

	return core.Failed(core.ReasonIdentifierNotFound,
		fmt.Sprintf("%q is neither a registered atomic task nor a tool", identifier), nil)
}

func helpResult(tmpl *template.Template) *core.TaskResult {
	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s\n", tmpl.Name, tmpl.Description)
	if tmpl.Subtype != "" {
		fmt.Fprintf(&b, "subtype: %s\n", tmpl.Subtype)
	}
	b.WriteString("parameters:\n")
	if len(tmpl.Params) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range tmpl.Params {
		if p.Type != "" {
			fmt.Fprintf(&b, "  %s (%s)\n", p.Name, p.Type)
		} else {
			fmt.Fprintf(&b, "  %s\n", p.Name)
		}
	}
	return &core.TaskResult{Status: core.StatusComplete, Content: b.String(), Notes: core.Notes{"help": true}}
}

func toolHelpResult(schema tool.Schema) *core.TaskResult {
	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s\nparameters:\n", schema.Name, schema.Description)
	if len(schema.Params) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range schema.Params {
		fmt.Fprintf(&b, "  %s (%s) %s\n", p.Name, p.Type, p.Description)
	}
	return &core.TaskResult{Status: core.StatusComplete, Content: b.String(), Notes: core.Notes{"help": true}}
}

// parseFailure marks a malformed request so ExitCode can distinguish a
// parse error from a validation failure inside a well-formed one.
func parseFailure(message string) *core.TaskResult {
	return core.Failed(core.ReasonInputValidationFailure, message, map[string]any{"parse": true})
}
