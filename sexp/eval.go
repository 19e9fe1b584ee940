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

package sexp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// Error is an evaluation failure carrying the closed failure reason the
// Dispatcher maps to an exit code.
type Error struct {
	Reason  core.FailureReason
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Message) }

func evalErrorf(reason core.FailureReason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// TaskRunner executes a SubtaskRequest to a terminal result. Satisfied
// by the atomic task executor.
type TaskRunner interface {
	Execute(ctx context.Context, req *core.SubtaskRequest) *core.TaskResult
}

// Config assembles an Evaluator.
type Config struct {
	Templates *template.Registry
	Tools     *tool.Registry
	Runner    TaskRunner
	Matcher   core.AssociativeMatcher
	Logger    *slog.Logger
}

// Evaluator is the recursive S-expression evaluator. One Evaluator
// serves one workflow; defatom definitions are global to the instance.
type Evaluator struct {
	templates *template.Registry
	tools     *tool.Registry
	runner    TaskRunner
	matcher   core.AssociativeMatcher
	global    *Environment
	log       *slog.Logger
}

// New builds an evaluator with a fresh global environment.
func New(cfg Config) *Evaluator {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Evaluator{
		templates: cfg.Templates,
		tools:     cfg.Tools,
		runner:    cfg.Runner,
		matcher:   cfg.Matcher,
		global:    NewEnvironment(nil),
		log:       log,
	}
}

// Global returns the evaluator's global environment.
func (ev *Evaluator) Global() *Environment { return ev.global }

// EvalString parses source and evaluates every top-level form in the
// global environment, returning the last value.
func (ev *Evaluator) EvalString(ctx context.Context, source string) (Value, error) {
	forms, err := Parse(source)
	if err != nil {
		return nil, err
	}
	var last Value = Nil
	for _, form := range forms {
		last, err = ev.Eval(ctx, form, ev.global)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// Eval evaluates one form in env.
func (ev *Evaluator) Eval(ctx context.Context, form Value, env *Environment) (Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, evalErrorf(core.ReasonExecutionHalted, "cancelled: %v", err)
	}

	switch t := form.(type) {
	case Symbol:
		v, ok := env.Get(t)
		if !ok {
			return nil, evalErrorf(core.ReasonUnboundSymbol, "unbound symbol %s", t)
		}
		return v, nil
	case List:
		if len(t) == 0 {
			return Nil, nil
		}
		return ev.evalList(ctx, t, env)
	default:
		// Numbers, strings, booleans, closures and task results are
		// self-evaluating.
		return form, nil
	}
}

func (ev *Evaluator) evalList(ctx context.Context, form List, env *Environment) (Value, error) {
	if op, ok := form[0].(Symbol); ok {
		if handler, special := ev.specialForm(op); special {
			return handler(ctx, form[1:], env)
		}
		if op == "get_context" {
			// get_context takes (key value) pairs whose keys are bare
			// symbols, so it evaluates its own arguments.
			return ev.primGetContext(ctx, form[1:], env)
		}
		if prim, ok := primitives[op]; ok {
			args, err := ev.evalArgs(ctx, form[1:], env)
			if err != nil {
				return nil, err
			}
			return prim(ev, ctx, args)
		}
		// A symbol that is neither special nor primitive is looked up
		// in the environment; unbound symbols fall through to task and
		// tool routing under their literal name.
		if v, bound := env.Get(op); bound {
			return ev.apply(ctx, v, form[1:], env)
		}
		return ev.apply(ctx, string(op), form[1:], env)
	}

	opVal, err := ev.Eval(ctx, form[0], env)
	if err != nil {
		return nil, err
	}
	return ev.apply(ctx, opVal, form[1:], env)
}

// apply dispatches an evaluated (or name-resolved) operator: closures
// are applied, strings route to a registered atomic task or direct
// tool, anything else is an undefined operator.
func (ev *Evaluator) apply(ctx context.Context, op Value, argForms List, env *Environment) (Value, error) {
	switch t := op.(type) {
	case *Closure:
		return ev.applyClosure(ctx, t, argForms, env)
	case string:
		if _, ok := ev.templates.Find(t); ok {
			return ev.invokeTask(ctx, t, argForms, env)
		}
		if _, ok := ev.tools.Find(t); ok {
			return ev.invokeTool(ctx, t, argForms, env)
		}
		return nil, evalErrorf(core.ReasonUndefinedOperator,
			"%q names no closure, atomic task, or tool", t)
	default:
		return nil, evalErrorf(core.ReasonUndefinedOperator,
			"cannot apply %s", Format(op))
	}
}

// applyClosure evaluates arguments in the calling environment, then
// runs the body in a fresh frame whose parent is the closure's captured
// environment. The captured chain, not the call site, is what body
// symbols resolve against.
func (ev *Evaluator) applyClosure(ctx context.Context, cl *Closure, argForms List, env *Environment) (Value, error) {
	if len(argForms) != len(cl.Params) {
		return nil, evalErrorf(core.ReasonArityMismatch,
			"closure expects %d argument(s), got %d", len(cl.Params), len(argForms))
	}
	args, err := ev.evalArgs(ctx, argForms, env)
	if err != nil {
		return nil, err
	}

	frame := NewEnvironment(cl.Env)
	for i, p := range cl.Params {
		frame.Define(p, args[i])
	}

	var result Value = Nil
	for _, body := range cl.Body {
		result, err = ev.Eval(ctx, body, frame)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (ev *Evaluator) evalArgs(ctx context.Context, forms List, env *Environment) ([]Value, error) {
	args := make([]Value, len(forms))
	for i, f := range forms {
		v, err := ev.Eval(ctx, f, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
