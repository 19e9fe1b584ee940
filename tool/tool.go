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

// Package tool is the Tool Registry: a name ->
// (schema, executor) map distinguishing direct tools, which run and
// return immediately, from subtask tools, whose executor produces a
// core.SubtaskRequest for the Subtask Loop to run instead.
package tool

import (
	"context"

	"github.com/mrivas-oss/taskrt/core"
)

// Kind distinguishes a tool whose executor runs synchronously from one
// that hands control back to the Subtask Loop.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindSubtask Kind = "subtask"
)

// Param is one entry of a tool's LLM-visible JSON Schema-ish input_schema.
type Param struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the LLM-visible description of a tool: name, description,
// and an input_schema built from Params.
type Schema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"input_schema"`
}

// Executor runs a direct tool call and returns its opaque string result.
type Executor func(ctx context.Context, args map[string]any) (string, error)

// SubtaskBuilder converts a subtask-kind tool call's arguments into the
// SubtaskRequest the Subtask Loop will execute. It must not perform any
// I/O itself; control passes back to the orchestrator.
type SubtaskBuilder func(ctx context.Context, args map[string]any) (*core.SubtaskRequest, error)

// Entry is what the registry stores per tool name. Exactly one of
// Executor (KindDirect) or Subtask (KindSubtask) is set.
type Entry struct {
	Schema   Schema
	Kind     Kind
	Executor Executor
	Subtask  SubtaskBuilder
}
