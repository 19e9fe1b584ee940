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

package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/template"
)

// applyOutputFormat parses and type-checks a completed task's content
// against its template's declared output format. Failures preserve the
// unparsed content under notes.original_content.
func (e *Executor) applyOutputFormat(tmpl *template.Template, result *core.TaskResult) *core.TaskResult {
	if result.Status != core.StatusComplete {
		return result
	}
	of := tmpl.OutputFormat
	if of == nil || of.Kind != template.OutputJSON {
		return result
	}

	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Content)), &parsed); err != nil {
		failed := core.Failed(core.ReasonOutputFormatFailure,
			fmt.Sprintf("content is not valid JSON: %v", err), nil)
		failed.Notes["original_content"] = result.Content
		return failed
	}
	if err := checkSchema(of.Schema, parsed); err != nil {
		failed := core.Failed(core.ReasonOutputFormatFailure, err.Error(), nil)
		failed.Notes["original_content"] = result.Content
		return failed
	}
	result.ParsedContent = parsed
	return result
}

// checkSchema performs the type-only check the output format promises:
// the parsed value's JSON type must match the declared schema.
func checkSchema(schema template.OutputSchema, parsed any) error {
	switch schema {
	case "", template.SchemaNone:
		return nil
	case template.SchemaObject:
		if _, ok := parsed.(map[string]any); !ok {
			return fmt.Errorf("expected a JSON object, got %T", parsed)
		}
	case template.SchemaArray:
		if _, ok := parsed.([]any); !ok {
			return fmt.Errorf("expected a JSON array, got %T", parsed)
		}
	case template.SchemaStrings:
		arr, ok := parsed.([]any)
		if !ok {
			return fmt.Errorf("expected a JSON array of strings, got %T", parsed)
		}
		for i, v := range arr {
			if _, ok := v.(string); !ok {
				return fmt.Errorf("expected a string at index %d, got %T", i, v)
			}
		}
	case template.SchemaNumber:
		if _, ok := parsed.(float64); !ok {
			return fmt.Errorf("expected a JSON number, got %T", parsed)
		}
	case template.SchemaBoolean:
		if _, ok := parsed.(bool); !ok {
			return fmt.Errorf("expected a JSON boolean, got %T", parsed)
		}
	default:
		return fmt.Errorf("unrecognised output schema %q", schema)
	}
	return nil
}
