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

// Package template stores parameterised atomic task definitions and
// validates their parameter contracts before the atomic task executor
// ever substitutes a placeholder.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
)

// OutputKind is the declared shape of a template's result content.
type OutputKind string

const (
	OutputText OutputKind = "text"
	OutputJSON OutputKind = "json"
)

// OutputSchema is the type-check-only schema applied to parsed JSON output.
type OutputSchema string

const (
	SchemaNone    OutputSchema = "none"
	SchemaObject  OutputSchema = "object"
	SchemaArray   OutputSchema = "array"
	SchemaStrings OutputSchema = "string[]"
	SchemaNumber  OutputSchema = "number"
	SchemaBoolean OutputSchema = "boolean"
)

var validSchemas = map[OutputSchema]bool{
	SchemaNone: true, SchemaObject: true, SchemaArray: true,
	SchemaStrings: true, SchemaNumber: true, SchemaBoolean: true,
}

// OutputFormat declares how an atomic task's raw content should be
// interpreted after the LLM call returns.
type OutputFormat struct {
	Kind   OutputKind   `yaml:"kind" json:"kind"`
	Schema OutputSchema `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// FilePathsSourceType selects how a template's default file paths are produced.
type FilePathsSourceType string

const (
	FilePathsLiteral     FilePathsSourceType = "literal"
	FilePathsCommand     FilePathsSourceType = "command"
	FilePathsDescription FilePathsSourceType = "description"
)

var validFilePathsSources = map[FilePathsSourceType]bool{
	FilePathsLiteral: true, FilePathsCommand: true, FilePathsDescription: true,
}

// FilePathsSource describes how to derive a template's default file list
// when a SubtaskRequest does not supply file_paths explicitly.
type FilePathsSource struct {
	Type FilePathsSourceType `yaml:"type" json:"type"`
	// Literal is the path list (Type=literal), Command the shell command to
	// run (Type=command), and Description the associative-match query
	// (Type=description).
	Literal     []string `yaml:"literal,omitempty" json:"literal,omitempty"`
	Command     string   `yaml:"command,omitempty" json:"command,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Param declares one parameter a template's instructions may reference.
type Param struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"` // advisory type hint only
}

// Template is a parameterised atomic task definition.
// Templates are immutable once registered.
type Template struct {
	Name         string  `yaml:"name" json:"name"`
	Type         string  `yaml:"type" json:"type"` // always "atomic"
	Subtype      string  `yaml:"subtype,omitempty" json:"subtype,omitempty"`
	Params       []Param `yaml:"params" json:"params"`
	Description  string  `yaml:"description,omitempty" json:"description,omitempty"`
	Instructions string  `yaml:"instructions" json:"instructions"`
	System       string  `yaml:"system,omitempty" json:"system,omitempty"`
	Model        string  `yaml:"model,omitempty" json:"model,omitempty"`

	ContextManagement *core.ContextManagement `yaml:"context_management,omitempty" json:"context_management,omitempty"`

	FilePaths       []string         `yaml:"file_paths,omitempty" json:"file_paths,omitempty"`
	FilePathsSource *FilePathsSource `yaml:"file_paths_source,omitempty" json:"file_paths_source,omitempty"`

	OutputFormat *OutputFormat `yaml:"output_format,omitempty" json:"output_format,omitempty"`
	Returns      string        `yaml:"returns,omitempty" json:"returns,omitempty"`
}

// EffectiveSubtype returns Subtype, defaulting to "standard".
func (t *Template) EffectiveSubtype() core.Subtype {
	if t.Subtype == "" {
		return core.SubtypeStandard
	}
	return core.Subtype(t.Subtype)
}

// ParamNames returns the declared parameter names, in declaration order.
func (t *Template) ParamNames() []string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.Name
	}
	return names
}

// paramSet returns the declared parameter names as a lookup set.
func (t *Template) paramSet() map[string]bool {
	set := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		set[p.Name] = true
	}
	return set
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// placeholders returns every distinct {{X}} symbol referenced in s.
func placeholders(s string) []string {
	matches := placeholderRe.FindAllStringSubmatch(s, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Validate enforces the registration-time invariants:
// type must be atomic, name must be non-empty, every {{X}} placeholder
// across instructions/system/description must resolve to a declared
// parameter, the default context management (if any) must satisfy
// mutual exclusivity, output_format.schema must be in the enumerated
// set, and file_paths_source.type must be one of literal/command/description.
func (t *Template) Validate() error {
	var problems []string

	if t.Type != "atomic" {
		problems = append(problems, fmt.Sprintf("type must be \"atomic\", got %q", t.Type))
	}
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}

	declared := t.paramSet()
	var unknown []string
	seenUnknown := make(map[string]bool)
	for _, field := range []string{t.Instructions, t.System, t.Description} {
		for _, ph := range placeholders(field) {
			if !declared[ph] && !seenUnknown[ph] {
				seenUnknown[ph] = true
				unknown = append(unknown, ph)
			}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		problems = append(problems, fmt.Sprintf("undeclared placeholder(s): %s", strings.Join(unknown, ", ")))
	}

	if t.ContextManagement != nil {
		if _, err := core.Resolve(t.EffectiveSubtype(), t.ContextManagement, nil); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if t.OutputFormat != nil {
		if t.OutputFormat.Schema != "" && !validSchemas[t.OutputFormat.Schema] {
			problems = append(problems, fmt.Sprintf("output_format.schema %q is not a recognised schema", t.OutputFormat.Schema))
		}
		if t.OutputFormat.Kind != OutputText && t.OutputFormat.Kind != OutputJSON {
			problems = append(problems, fmt.Sprintf("output_format.kind %q must be text or json", t.OutputFormat.Kind))
		}
	}

	if t.FilePathsSource != nil && !validFilePathsSources[t.FilePathsSource.Type] {
		problems = append(problems, fmt.Sprintf("file_paths_source.type %q must be literal, command, or description", t.FilePathsSource.Type))
	}

	if len(problems) > 0 {
		return &ValidationError{Template: t.Name, Problems: problems}
	}
	return nil
}

// ValidationError enumerates every offending field found during
// registration; nothing is registered when it is returned.
type ValidationError struct {
	Template string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template %q failed validation: %s", e.Template, strings.Join(e.Problems, "; "))
}
