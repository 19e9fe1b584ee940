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

import "context"

// ContentType classifies what a MatchItem actually carries.
type ContentType string

const (
	ContentFile         ContentType = "file_content"
	ContentSummary      ContentType = "summary"
	ContentFilePathOnly ContentType = "file_path_only"
)

// MatchItem is one hit from an associative-match lookup against the
// global file index.
type MatchItem struct {
	ID             string      `json:"id"`
	ContentType    ContentType `json:"content_type"`
	Content        string      `json:"content,omitempty"`
	SourcePath     string      `json:"source_path,omitempty"`
	RelevanceScore float64     `json:"relevance_score"`
}

// AssociativeMatchResult is the full response from the associative
// matcher.
type AssociativeMatchResult struct {
	ContextSummary string      `json:"context_summary"`
	Matches        []MatchItem `json:"matches"`
	Error          string      `json:"error,omitempty"`
}

// MatchQuery is the input to an associative match: a primary text query
// plus optional structured inputs used by richer matchers.
type MatchQuery struct {
	Query            string
	History          []string
	Inputs           map[string]any
	MatchingStrategy string
}

// AssociativeMatcher maps a query to scored candidate files. Everything
// in this module depends only on this interface, never on a concrete
// ranking implementation.
type AssociativeMatcher interface {
	Match(ctx context.Context, q MatchQuery) (*AssociativeMatchResult, error)
}

// FileIndex is the process-wide path -> descriptive-metadata mapping.
// Reads never mutate; writes (indexing) are rare and
// the zero value is ready to use.
type FileIndex struct {
	entries map[string]string
}

// NewFileIndex returns an empty, ready-to-use index.
func NewFileIndex() *FileIndex {
	return &FileIndex{entries: make(map[string]string)}
}

// Put inserts or overwrites the metadata string for an absolute path.
// Returns an error if path is not absolute: the index is keyed by
// absolute path only.
func (idx *FileIndex) Put(absPath, metadata string) error {
	if !isAbs(absPath) {
		return errNotAbsolute(absPath)
	}
	if idx.entries == nil {
		idx.entries = make(map[string]string)
	}
	idx.entries[absPath] = metadata
	return nil
}

// Get returns the metadata for a path, if indexed.
func (idx *FileIndex) Get(absPath string) (string, bool) {
	v, ok := idx.entries[absPath]
	return v, ok
}

// Len returns the number of indexed paths.
func (idx *FileIndex) Len() int { return len(idx.entries) }

// All returns a snapshot copy of the index contents.
func (idx *FileIndex) All() map[string]string {
	out := make(map[string]string, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out
}
