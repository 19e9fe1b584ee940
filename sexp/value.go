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

// Package sexp is the workflow language: a small Lisp-family
// interpreter with lexical closures that composes atomic tasks, tools
// and primitives. Parsing produces the same Value domain evaluation
// consumes; an AST node is just an unevaluated value.
package sexp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
)

// Value is one of: Symbol, string, float64, bool, List, *Closure,
// *core.TaskResult, or nil (which is also the empty list).
type Value any

// Symbol is an identifier. Distinct from string so quoted names and
// string literals never collide.
type Symbol string

// List is an ordered sequence of values. A nil List is the nil value.
type List []Value

// Closure is a first-class function value capturing the environment it
// was created in.
type Closure struct {
	Params []Symbol
	Body   []Value
	Env    *Environment
}

// Nil is the canonical empty list.
var Nil = List(nil)

// Truthy implements the conditional rule: false, nil, zero, the empty
// string and the empty list are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case List:
		return len(t) > 0
	default:
		return true
	}
}

// IsInteger reports whether v is a float64 holding an exact integer.
func IsInteger(v Value) (int, bool) {
	f, ok := v.(float64)
	if !ok || math.Trunc(f) != f || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// Format renders a value back to S-expression surface syntax. Task
// results render as their content string.
func Format(v Value) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if i, ok := IsInteger(t); ok {
			return strconv.Itoa(i)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	case Symbol:
		return string(t)
	case List:
		if len(t) == 0 {
			return "nil"
		}
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Format(e)
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *Closure:
		return fmt.Sprintf("#<closure/%d>", len(t.Params))
	case *core.TaskResult:
		return t.Content
	default:
		return fmt.Sprintf("%v", t)
	}
}
