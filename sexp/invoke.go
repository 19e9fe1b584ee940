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

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/tool"
)

// invokeTask builds a SubtaskRequest from the argument forms and runs
// it through the atomic task executor. The TaskResult — terminal, even
// when FAILED — is returned as an ordinary value so workflows can
// pattern-match on status.
func (ev *Evaluator) invokeTask(ctx context.Context, name string, argForms List, env *Environment) (Value, error) {
	req := &core.SubtaskRequest{Type: "atomic", Name: name, Inputs: map[string]any{}}

	if named, ok := namedArgStyle(argForms); ok {
		for _, pair := range named {
			key := pair[0].(Symbol)
			switch key {
			case "files":
				paths, err := ev.evalPathList(ctx, pair[1], env)
				if err != nil {
					return nil, err
				}
				req.FilePaths = paths
			case "context":
				cm, err := parseContextArg(pair[1:])
				if err != nil {
					return nil, err
				}
				req.ContextMgmt = cm
			default:
				v, err := ev.Eval(ctx, pair[1], env)
				if err != nil {
					return nil, err
				}
				req.Inputs[string(key)] = toGoValue(v)
			}
		}
	} else {
		tmpl, _ := ev.templates.Find(name)
		paramNames := tmpl.ParamNames()
		if len(argForms) > len(paramNames) {
			return nil, evalErrorf(core.ReasonArityMismatch,
				"task %s declares %d parameter(s), got %d argument(s)", name, len(paramNames), len(argForms))
		}
		args, err := ev.evalArgs(ctx, argForms, env)
		if err != nil {
			return nil, err
		}
		for i, v := range args {
			req.Inputs[paramNames[i]] = toGoValue(v)
		}
	}

	return ev.runner.Execute(ctx, req), nil
}

// invokeTool evaluates named (key value) argument pairs and calls the
// direct tool. A tool error becomes a FAILED result value rather than
// aborting the workflow.
func (ev *Evaluator) invokeTool(ctx context.Context, name string, argForms List, env *Environment) (Value, error) {
	args := map[string]any{}
	named, ok := namedArgStyle(argForms)
	if !ok && len(argForms) > 0 {
		return nil, evalErrorf(core.ReasonInputValidationFailure,
			"tool %s takes named (key value) arguments", name)
	}
	for _, pair := range named {
		v, err := ev.Eval(ctx, pair[1], env)
		if err != nil {
			return nil, err
		}
		args[string(pair[0].(Symbol))] = toGoValue(v)
	}

	out, err := ev.tools.Execute(ctx, name, args)
	if err != nil {
		return core.Failed(core.ReasonUnexpectedError, err.Error(), map[string]any{"tool": name}), nil
	}
	return out, nil
}

// namedArgStyle reports whether every argument form is a (symbol ...)
// pair, the named style. A single malformed pair falls back to
// positional interpretation.
func namedArgStyle(argForms List) ([]List, bool) {
	if len(argForms) == 0 {
		return nil, true
	}
	named := make([]List, 0, len(argForms))
	for _, f := range argForms {
		pair, ok := f.(List)
		if !ok || len(pair) < 2 {
			return nil, false
		}
		if _, ok := pair[0].(Symbol); !ok {
			return nil, false
		}
		named = append(named, pair)
	}
	return named, true
}

// parseContextArg reads the reserved (context (knob value) ...) form
// without evaluating: knob values are plain symbols like none or
// enabled.
func parseContextArg(forms List) (*core.ContextManagement, error) {
	raw := map[string]any{}
	for _, f := range forms {
		pair, ok := f.(List)
		if !ok || len(pair) != 2 {
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"context entries must be (knob value) pairs")
		}
		key, ok := pair[0].(Symbol)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"context knob must be a symbol")
		}
		switch v := pair[1].(type) {
		case Symbol:
			raw[string(key)] = string(v)
		case string:
			raw[string(key)] = v
		case bool:
			raw[string(key)] = v
		case float64:
			raw[string(key)] = v
		default:
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"context knob %s has an unsupported value", key)
		}
	}
	cm, err := tool.DecodeContextManagement(raw)
	if err != nil {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "%v", err)
	}
	return cm, nil
}

func (ev *Evaluator) evalPathList(ctx context.Context, form Value, env *Environment) ([]string, error) {
	v, err := ev.Eval(ctx, form, env)
	if err != nil {
		return nil, err
	}
	list, ok := v.(List)
	if !ok {
		if s, ok := v.(string); ok {
			return []string{s}, nil
		}
		return nil, evalErrorf(core.ReasonInputValidationFailure, "files must be a list of paths")
	}
	paths := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "files entries must be strings")
		}
		paths = append(paths, s)
	}
	return paths, nil
}

// toGoValue converts an evaluated value into the plain Go shape a
// SubtaskRequest or tool call carries.
func toGoValue(v Value) any {
	switch t := v.(type) {
	case Symbol:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toGoValue(e)
		}
		return out
	case *core.TaskResult:
		return t.Content
	default:
		return v
	}
}
