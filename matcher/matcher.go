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

// Package matcher provides the default in-process associative matcher:
// a bag-of-words overlap scorer over the global file index's metadata
// strings. The ranking is deliberately simple; anything smarter (vector
// stores, embeddings) plugs in behind core.AssociativeMatcher without
// touching the Context Resolver.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
)

// MinScore is the relevance floor below which an index entry is not
// reported as a match.
const MinScore = 0.05

// IndexMatcher scores index entries against a query by token overlap
// between the query and each entry's metadata string plus its path.
type IndexMatcher struct {
	index *core.FileIndex
}

// NewIndexMatcher wraps the given file index.
func NewIndexMatcher(index *core.FileIndex) *IndexMatcher {
	return &IndexMatcher{index: index}
}

// Match implements core.AssociativeMatcher. Results are sorted by
// descending score; equal scores fall back to lexical path order so the
// ranking is deterministic run to run.
func (m *IndexMatcher) Match(ctx context.Context, q core.MatchQuery) (*core.AssociativeMatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenSet(buildQueryText(q))
	if len(queryTokens) == 0 {
		return &core.AssociativeMatchResult{
			ContextSummary: "empty query",
		}, nil
	}

	var matches []core.MatchItem
	for path, metadata := range m.index.All() {
		score := overlapScore(queryTokens, tokenSet(metadata+" "+path))
		if score < MinScore {
			continue
		}
		matches = append(matches, core.MatchItem{
			ID:             path,
			ContentType:    core.ContentFilePathOnly,
			SourcePath:     path,
			RelevanceScore: score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].RelevanceScore != matches[j].RelevanceScore {
			return matches[i].RelevanceScore > matches[j].RelevanceScore
		}
		return matches[i].SourcePath < matches[j].SourcePath
	})

	return &core.AssociativeMatchResult{
		ContextSummary: fmt.Sprintf("%d of %d indexed files matched", len(matches), m.index.Len()),
		Matches:        matches,
	}, nil
}

// buildQueryText folds the structured query parts into one text blob.
func buildQueryText(q core.MatchQuery) string {
	var b strings.Builder
	b.WriteString(q.Query)
	for _, h := range q.History {
		b.WriteString(" ")
		b.WriteString(h)
	}
	for _, v := range q.Inputs {
		fmt.Fprintf(&b, " %v", v)
	}
	return b.String()
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = true
		}
	}
	return set
}

// overlapScore is the share of query tokens present in the candidate.
// Jaccard over the union would punish long metadata strings for being
// descriptive, so the query side alone is the denominator.
func overlapScore(query, candidate map[string]bool) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	hit := 0
	for w := range query {
		if candidate[w] {
			hit++
		}
	}
	return float64(hit) / float64(len(query))
}
