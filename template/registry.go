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

package template

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the Template Registry. Unlike the tool registry,
// registration here is an upsert: re-registering a name replaces the
// previous template rather than erroring, since templates are
// typically (re)loaded wholesale from config files on every startup.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Template
	byTypeSub map[string]*Template // "type:subtype", last write wins
	order     map[string]int       // name -> insertion sequence, for stable FindMatching ties
	seq       int
}

// NewRegistry returns an empty, ready-to-use Template Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*Template),
		byTypeSub: make(map[string]*Template),
		order:     make(map[string]int),
	}
}

func typeSubKey(t *Template) string {
	return fmt.Sprintf("%s:%s", t.Type, t.Subtype)
}

// Register validates tmpl and inserts or replaces it under its name and
// its "type:subtype" composite key. On validation failure nothing is
// registered (no partial update).
func (r *Registry) Register(tmpl *Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.order[tmpl.Name]; !exists {
		r.order[tmpl.Name] = r.seq
		r.seq++
	}
	r.byName[tmpl.Name] = tmpl
	if tmpl.Subtype != "" {
		r.byTypeSub[typeSubKey(tmpl)] = tmpl
	}
	return nil
}

// Find resolves an identifier first by exact name, then by "type:subtype"
// (with type implicitly "atomic").
func (r *Registry) Find(identifier string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byName[identifier]; ok {
		return t, true
	}
	if t, ok := r.byTypeSub["atomic:"+identifier]; ok {
		return t, true
	}
	return nil, false
}

// Count returns the number of distinct registered templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// List returns every registered template, sorted by name for deterministic
// output (used by the Dispatcher's --help introspection).
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match is one scored hit from FindMatching.
type Match struct {
	Template *Template
	Score    float64
}

// FindMatching scores every registered template's description against
// queryText using Jaccard similarity over tokenized words, keeping only
// scores at or above matchThreshold. Results are sorted by descending
// score with ties broken by registration (insertion) order. This never
// participates in explicit name/type:subtype lookup.
func (r *Registry) FindMatching(queryText string) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queryTokens := tokenize(queryText)

	type scored struct {
		m   Match
		idx int
	}
	var candidates []scored
	for _, t := range r.byName {
		score := jaccardScore(queryTokens, tokenize(t.Description))
		if score >= matchThreshold {
			candidates = append(candidates, scored{Match{Template: t, Score: score}, r.order[t.Name]})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].m.Score != candidates[j].m.Score {
			return candidates[i].m.Score > candidates[j].m.Score
		}
		return candidates[i].idx < candidates[j].idx
	})

	out := make([]Match, len(candidates))
	for i, c := range candidates {
		out[i] = c.m
	}
	return out
}
