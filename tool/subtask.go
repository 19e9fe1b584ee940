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

package tool

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/mrivas-oss/taskrt/core"
)

// SpawnSubtaskToolName is the LLM-visible name of the built-in tool an
// atomic task calls to spawn another atomic task mid-turn.
const SpawnSubtaskToolName = "spawn_subtask"

// subtaskArgs is the argument shape the LLM sends to spawn_subtask.
type subtaskArgs struct {
	Name              string         `mapstructure:"name"`
	Subtype           string         `mapstructure:"subtype"`
	Prompt            string         `mapstructure:"prompt"`
	Inputs            map[string]any `mapstructure:"inputs"`
	FileContext       []string       `mapstructure:"file_context"`
	ContextManagement map[string]any `mapstructure:"context_management"`
	MaxDepth          int            `mapstructure:"max_depth"`
	TemplateHints     []string       `mapstructure:"template_hints"`
}

// DecodeContextManagement converts a loosely-typed map (as produced by
// JSON tool arguments or S-expression named args) into a typed
// ContextManagement overlay.
func DecodeContextManagement(raw map[string]any) (*core.ContextManagement, error) {
	if raw == nil {
		return nil, nil
	}
	var cm core.ContextManagement
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cm,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("context_management: %w", err)
	}
	return &cm, nil
}

// BuildSubtaskRequest decodes raw spawn_subtask arguments into a
// SubtaskRequest. A bare prompt argument becomes the "prompt" input
// unless the inputs already carry one.
func BuildSubtaskRequest(args map[string]any) (*core.SubtaskRequest, error) {
	var sa subtaskArgs
	// Weak typing because tool arguments arrive JSON-decoded: numbers
	// are float64, string lists are []any.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sa,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("spawn_subtask arguments: %w", err)
	}
	if sa.Name == "" && sa.Subtype == "" {
		return nil, fmt.Errorf("spawn_subtask requires a name or subtype")
	}

	inputs := sa.Inputs
	if sa.Prompt != "" {
		if inputs == nil {
			inputs = make(map[string]any, 1)
		}
		if _, exists := inputs["prompt"]; !exists {
			inputs["prompt"] = sa.Prompt
		}
	}

	cm, err := DecodeContextManagement(sa.ContextManagement)
	if err != nil {
		return nil, err
	}

	return &core.SubtaskRequest{
		Type:          "atomic",
		Name:          sa.Name,
		Subtype:       sa.Subtype,
		Inputs:        inputs,
		FilePaths:     sa.FileContext,
		ContextMgmt:   cm,
		MaxDepth:      sa.MaxDepth,
		TemplateHints: sa.TemplateHints,
		ToolCallName:  SpawnSubtaskToolName,
	}, nil
}

// RegisterSpawnSubtask adds the spawn_subtask subtask-kind tool to r.
func RegisterSpawnSubtask(r *Registry) error {
	return r.Register(SpawnSubtaskToolName, Entry{
		Schema: Schema{
			Name:        SpawnSubtaskToolName,
			Description: "Spawn a named atomic task as a subtask; its result is returned as a tool response.",
			Params: []Param{
				{Name: "name", Type: "string", Description: "registered atomic task name"},
				{Name: "subtype", Type: "string", Description: "atomic task subtype, used when name is omitted"},
				{Name: "prompt", Type: "string", Description: "shorthand for inputs.prompt"},
				{Name: "inputs", Type: "object", Description: "parameter values for the task"},
				{Name: "file_context", Type: "array", Description: "absolute file paths to include in the subtask's context"},
				{Name: "context_management", Type: "object", Description: "context management overrides"},
			},
		},
		Kind: KindSubtask,
		Subtask: func(_ context.Context, args map[string]any) (*core.SubtaskRequest, error) {
			return BuildSubtaskRequest(args)
		},
	})
}
