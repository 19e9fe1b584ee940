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

	"github.com/mrivas-oss/taskrt/core"
)

// primitiveFunc receives already-evaluated arguments.
type primitiveFunc func(ev *Evaluator, ctx context.Context, args []Value) (Value, error)

var primitives = map[Symbol]primitiveFunc{
	"list":              primList,
	"system:run_script": primRunScript,
	"read_file":         primReadFile,
	"write_file":        primWriteFile,
	"+":                 arith("+"),
	"-":                 arith("-"),
	"*":                 arith("*"),
	"/":                 arith("/"),
	"=":                 primEquals,
	"<":                 compare("<"),
	">":                 compare(">"),
	"<=":                compare("<="),
	">=":                compare(">="),
	"not":               primNot,
}

func primList(_ *Evaluator, _ context.Context, args []Value) (Value, error) {
	if len(args) == 0 {
		return Nil, nil
	}
	return List(args), nil
}

func primNot(_ *Evaluator, _ context.Context, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, evalErrorf(core.ReasonArityMismatch, "not takes one argument")
	}
	return !Truthy(args[0]), nil
}

func primRunScript(ev *Evaluator, ctx context.Context, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, evalErrorf(core.ReasonArityMismatch, "system:run_script takes a command string")
	}
	command, ok := args[0].(string)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "system:run_script command must be a string")
	}
	out, err := ev.tools.Execute(ctx, "system:run_script", map[string]any{"command": command})
	if err != nil {
		return core.Failed(core.ReasonExecutionTimeout, err.Error(), map[string]any{"command": command}), nil
	}
	return out, nil
}

func primReadFile(ev *Evaluator, ctx context.Context, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, evalErrorf(core.ReasonArityMismatch, "read_file takes a path")
	}
	path, ok := args[0].(string)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "read_file path must be a string")
	}
	out, err := ev.tools.Execute(ctx, "read_file", map[string]any{"path": path})
	if err != nil {
		return core.Failed(core.ReasonContextRetrievalFailure, err.Error(), map[string]any{"path": path}), nil
	}
	return out, nil
}

func primWriteFile(ev *Evaluator, ctx context.Context, args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "write_file takes a path and content")
	}
	path, ok := args[0].(string)
	if !ok {
		return nil, evalErrorf(core.ReasonInputValidationFailure, "write_file path must be a string")
	}
	out, err := ev.tools.Execute(ctx, "write_file", map[string]any{
		"path":    path,
		"content": Format(args[1]),
	})
	if err != nil {
		return core.Failed(core.ReasonUnexpectedError, err.Error(), map[string]any{"path": path}), nil
	}
	return out, nil
}

func arith(op string) primitiveFunc {
	return func(_ *Evaluator, _ context.Context, args []Value) (Value, error) {
		nums, err := numericArgs(op, args)
		if err != nil {
			return nil, err
		}
		if len(nums) == 0 {
			return nil, evalErrorf(core.ReasonArityMismatch, "%s takes at least one argument", op)
		}
		acc := nums[0]
		if len(nums) == 1 {
			switch op {
			case "-":
				return -acc, nil
			case "/":
				if acc == 0 {
					return nil, evalErrorf(core.ReasonUnexpectedError, "division by zero")
				}
				return 1 / acc, nil
			default:
				return acc, nil
			}
		}
		for _, n := range nums[1:] {
			switch op {
			case "+":
				acc += n
			case "-":
				acc -= n
			case "*":
				acc *= n
			case "/":
				if n == 0 {
					return nil, evalErrorf(core.ReasonUnexpectedError, "division by zero")
				}
				acc /= n
			}
		}
		return acc, nil
	}
}

func primEquals(_ *Evaluator, _ context.Context, args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, evalErrorf(core.ReasonArityMismatch, "= takes two arguments")
	}
	return equalValues(args[0], args[1]), nil
}

func equalValues(a, b Value) bool {
	la, aok := a.(List)
	lb, bok := b.(List)
	if aok && bok {
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equalValues(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

func compare(op string) primitiveFunc {
	return func(_ *Evaluator, _ context.Context, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, evalErrorf(core.ReasonArityMismatch, "%s takes two arguments", op)
		}
		nums, err := numericArgs(op, args)
		if err != nil {
			return nil, err
		}
		a, b := nums[0], nums[1]
		switch op {
		case "<":
			return a < b, nil
		case ">":
			return a > b, nil
		case "<=":
			return a <= b, nil
		default:
			return a >= b, nil
		}
	}
}

func numericArgs(op string, args []Value) ([]float64, error) {
	nums := make([]float64, len(args))
	for i, a := range args {
		n, ok := a.(float64)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"%s expects numbers, got %s", op, Format(a))
		}
		nums[i] = n
	}
	return nums, nil
}

// primGetContext is dispatched from evalList with unevaluated forms:
// its arguments are (key value) pairs whose value expressions it
// evaluates itself.
func (ev *Evaluator) primGetContext(ctx context.Context, forms List, env *Environment) (Value, error) {
	q := core.MatchQuery{}
	for _, f := range forms {
		pair, ok := f.(List)
		if !ok || len(pair) != 2 {
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"get_context takes (key value) pairs")
		}
		key, ok := pair[0].(Symbol)
		if !ok {
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"get_context keys must be symbols")
		}
		v, err := ev.Eval(ctx, pair[1], env)
		if err != nil {
			return nil, err
		}
		switch key {
		case "query":
			s, ok := v.(string)
			if !ok {
				return nil, evalErrorf(core.ReasonInputValidationFailure, "get_context query must be a string")
			}
			q.Query = s
		case "history":
			switch t := v.(type) {
			case string:
				q.History = []string{t}
			case List:
				for _, e := range t {
					q.History = append(q.History, Format(e))
				}
			}
		case "inputs":
			inputs, ok := toGoValue(v).([]any)
			if ok {
				q.Inputs = map[string]any{}
				for i, e := range inputs {
					q.Inputs[fmt.Sprintf("input_%d", i)] = e
				}
			}
		case "matching_strategy":
			s, ok := v.(string)
			if !ok {
				return nil, evalErrorf(core.ReasonInputValidationFailure, "get_context matching_strategy must be a string")
			}
			q.MatchingStrategy = s
		default:
			return nil, evalErrorf(core.ReasonInputValidationFailure,
				"get_context key %s is not recognised", key)
		}
	}

	if ev.matcher == nil {
		return Nil, nil
	}
	result, err := ev.matcher.Match(ctx, q)
	if err != nil {
		return nil, evalErrorf(core.ReasonContextMatchingFailure, "%v", err)
	}
	if result.Error != "" {
		return nil, evalErrorf(core.ReasonContextMatchingFailure, "%s", result.Error)
	}
	paths := make(List, 0, len(result.Matches))
	for _, m := range result.Matches {
		paths = append(paths, m.SourcePath)
	}
	if len(paths) == 0 {
		return Nil, nil
	}
	return paths, nil
}
