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
	"github.com/mrivas-oss/taskrt/template"
)

// specialFormHandler receives its arguments unevaluated and decides
// itself what to evaluate.
type specialFormHandler func(ctx context.Context, args List, env *Environment) (Value, error)

func (ev *Evaluator) specialForm(name Symbol) (specialFormHandler, bool) {
	switch name {
	case "quote":
		return ev.sfQuote, true
	case "if":
		return ev.sfIf, true
	case "let":
		return ev.sfLet, true
	case "bind":
		return ev.sfBind, true
	case "progn":
		return ev.sfProgn, true
	case "lambda":
		return ev.sfLambda, true
	case "defatom":
		return ev.sfDefatom, true
	case "loop":
		return ev.sfLoop, true
	}
	return nil, false
}

func (ev *Evaluator) sfQuote(_ context.Context, args List, _ *Environment) (Value, error) {
	if len(args) != 1 {
		return nil, evalErrorf(core.ReasonArityMismatch, "quote takes exactly one form")
	}
	return args[0], nil
}

func (ev *Evaluator) sfIf(ctx context.Context, args List, env *Environment) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, evalErrorf(core.ReasonArityMismatch, "if takes a condition, a then-form and an optional else-form")
	}
	cond, err := ev.Eval(ctx, args[0], env)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return ev.Eval(ctx, args[1], env)
	}
	if len(args) == 3 {
		return ev.Eval(ctx, args[2], env)
	}
	return Nil, nil
}

// sfLet is parallel let: every init expression is evaluated in the
// enclosing environment before any binding is established.
func (ev *Evaluator) sfLet(ctx context.Context, args List, env *Environment) (Value, error) {
	if len(args) < 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "let takes a binding list and at least one body form")
	}
	bindingForms, ok := args[0].(List)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "let bindings must be a list")
	}

	names := make([]Symbol, len(bindingForms))
	values := make([]Value, len(bindingForms))
	for i, b := range bindingForms {
		pair, ok := b.(List)
		if !ok || len(pair) != 2 {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "let binding %d must be a (symbol expr) pair", i)
		}
		name, ok := pair[0].(Symbol)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "let binding %d must start with a symbol", i)
		}
		v, err := ev.Eval(ctx, pair[1], env)
		if err != nil {
			return nil, err
		}
		names[i], values[i] = name, v
	}

	frame := NewEnvironment(env)
	for i, name := range names {
		frame.Define(name, values[i])
	}

	var result Value = Nil
	var err error
	for _, body := range args[1:] {
		result, err = ev.Eval(ctx, body, frame)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (ev *Evaluator) sfBind(ctx context.Context, args List, env *Environment) (Value, error) {
	if len(args) != 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "bind takes a symbol and an expression")
	}
	name, ok := args[0].(Symbol)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "bind target must be a symbol")
	}
	v, err := ev.Eval(ctx, args[1], env)
	if err != nil {
		return nil, err
	}
	env.Define(name, v)
	return v, nil
}

func (ev *Evaluator) sfProgn(ctx context.Context, args List, env *Environment) (Value, error) {
	var result Value = Nil
	var err error
	for _, form := range args {
		result, err = ev.Eval(ctx, form, env)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (ev *Evaluator) sfLambda(_ context.Context, args List, env *Environment) (Value, error) {
	if len(args) < 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "lambda takes a parameter list and at least one body form")
	}
	paramForms, ok := args[0].(List)
	if !ok && args[0] != nil {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "lambda parameters must be a list")
	}
	params := make([]Symbol, len(paramForms))
	for i, p := range paramForms {
		sym, ok := p.(Symbol)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "lambda parameter %d must be a symbol", i)
		}
		params[i] = sym
	}
	return &Closure{Params: params, Body: append(List{}, args[1:]...), Env: env}, nil
}

// sfLoop evaluates the count expression exactly once, requires a
// non-negative integer, and evaluates the body that many times.
func (ev *Evaluator) sfLoop(ctx context.Context, args List, env *Environment) (Value, error) {
	if len(args) != 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "loop takes a count expression and a body expression")
	}
	countVal, err := ev.Eval(ctx, args[0], env)
	if err != nil {
		return nil, err
	}
	n, ok := IsInteger(countVal)
	if !ok || n < 0 {
		return nil, evalErrorf(core.ReasonInputValidationFailure,
			"loop count must be a non-negative integer, got %s", Format(countVal))
	}

	var result Value = Nil
	for i := 0; i < n; i++ {
		result, err = ev.Eval(ctx, args[1], env)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// sfDefatom synthesises a Template from unevaluated forms and registers
// it, making the task name immediately invocable. Definitions are
// global to the evaluator instance, not lexically scoped.
func (ev *Evaluator) sfDefatom(_ context.Context, args List, _ *Environment) (Value, error) {
	if len(args) < 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "defatom takes a name and at least an instructions clause")
	}
	name, ok := args[0].(Symbol)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "defatom name must be a symbol")
	}

	tmpl := &template.Template{Name: string(name), Type: "atomic"}
	for _, clauseForm := range args[1:] {
		clause, ok := clauseForm.(List)
		if !ok || len(clause) < 1 {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "defatom clauses must be lists")
		}
		key, ok := clause[0].(Symbol)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure, "defatom clause must start with a symbol")
		}
		switch key {
		case "params":
			params, err := parseDefatomParams(clause[1:])
			if err != nil {
				return nil, err
			}
			tmpl.Params = params
		case "instructions":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.Instructions = s
		case "system":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.System = s
		case "subtype":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.Subtype = s
		case "description":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.Description = s
		case "model":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.Model = s
		case "returns":
			s, err := clauseString(key, clause)
			if err != nil {
				return nil, err
			}
			tmpl.Returns = s
		default:
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"defatom clause %s is not recognised", key)
		}
	}

	if err := ev.templates.Register(tmpl); err != nil {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "defatom %s: %v", name, err)
	}
	return name, nil
}

func parseDefatomParams(forms List) ([]template.Param, error) {
	params := make([]template.Param, 0, len(forms))
	for i, f := range forms {
		switch t := f.(type) {
		case Symbol:
			params = append(params, template.Param{Name: string(t)})
		case List:
			if len(t) < 1 || len(t) > 2 {
				return nil, evalErrorf(core.ReasonInputValidationFailure,
					"defatom param %d must be a symbol or (symbol type) pair", i)
			}
			name, ok := t[0].(Symbol)
			if !ok {
				return nil, evalErrorf(core.ReasonInputValidationFailure,
					"defatom param %d must start with a symbol", i)
			}
			p := template.Param{Name: string(name)}
			if len(t) == 2 {
				switch hint := t[1].(type) {
				case Symbol:
					p.Type = string(hint)
				case string:
					p.Type = hint
				}
			}
			params = append(params, p)
		default:
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"defatom param %d must be a symbol or (symbol type) pair", i)
		}
	}
	return params, nil
}

func clauseString(key Symbol, clause List) (string, error) {
	if len(clause) != 2 {
		return "", evalErrorf(core.ReasonInputValidationFailure, "defatom %s clause takes one value", key)
	}
	switch t := clause[1].(type) {
	case string:
		return t, nil
	case Symbol:
		return string(t), nil
	default:
		return "", evalErrorf(core.ReasonInputValidationFailure, "defatom %s clause must be a string", key)
	}
}
