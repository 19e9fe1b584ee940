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
	"sort"
	"sync"
)

// Registry is the Tool Registry: a locked name -> Entry map.
// Registration is error-on-duplicate because tool registration is a
// rare, serialised, startup-time operation, unlike the Template
// Registry's upsert semantics.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty, ready-to-use Tool Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a tool under name. Returns an error if name is empty or
// already registered.
func (r *Registry) Register(name string, entry Entry) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.entries[name] = entry
	return nil
}

// Find returns the tool entry registered under name, if any.
func (r *Registry) Find(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Execute dispatches a tool call to the executor registered under name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	entry, ok := r.Find(name)
	if !ok {
		return "", fmt.Errorf("tool %q not found", name)
	}
	if entry.Kind == KindSubtask || entry.Executor == nil {
		return "", fmt.Errorf("tool %q is not directly executable", name)
	}
	return entry.Executor(ctx, args)
}

// Schemas returns every registered tool's LLM-visible schema, sorted by
// name for deterministic tool-directive construction.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
