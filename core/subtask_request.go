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

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DefaultMaxDepth is used when a SubtaskRequest does not specify one.
const DefaultMaxDepth = 5

// SubtaskRequest is the handle used to invoke an atomic task
// programmatically, whether from the CLI, the S-expression evaluator, or
// a CONTINUATION returned mid-turn.
type SubtaskRequest struct {
	Type          string             `json:"type" yaml:"type"` // must be "atomic"
	Name          string             `json:"name,omitempty" yaml:"name,omitempty"`
	Subtype       string             `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Inputs        map[string]any     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	FilePaths     []string           `json:"file_paths,omitempty" yaml:"file_paths,omitempty"`
	ContextMgmt   *ContextManagement `json:"context_management,omitempty" yaml:"context_management,omitempty"`
	MaxDepth      int                `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	TemplateHints []string           `json:"template_hints,omitempty" yaml:"template_hints,omitempty"`
	ToolCallName  string             `json:"-" yaml:"-"` // the LLM-visible tool name this request was spawned from, for stitching the result back
}

// EffectiveMaxDepth returns MaxDepth, defaulting to 5.
func (r *SubtaskRequest) EffectiveMaxDepth() int {
	if r.MaxDepth > 0 {
		return r.MaxDepth
	}
	return DefaultMaxDepth
}

// Signature computes the cycle-detection hash: a hash of the name plus
// canonicalised inputs. Canonicalisation sorts input keys so
// that equivalent input maps always hash identically, independent of Go
// map iteration order.
func (r *SubtaskRequest) Signature() string {
	keys := make([]string, 0, len(r.Inputs))
	for k := range r.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte(0)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", r.Inputs[k])
		b.WriteByte(0)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
