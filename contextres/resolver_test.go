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

package contextres

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/template"
)

// stubMatcher returns a fixed match list regardless of the query.
type stubMatcher struct {
	matches []core.MatchItem
	queries []core.MatchQuery
}

func (m *stubMatcher) Match(_ context.Context, q core.MatchQuery) (*core.AssociativeMatchResult, error) {
	m.queries = append(m.queries, q)
	return &core.AssociativeMatchResult{Matches: m.matches}, nil
}

func fakeReader(files map[string]string) FileReader {
	return func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("no such file: %s", path)
		}
		return []byte(content), nil
	}
}

func newTestResolver(matcher core.AssociativeMatcher, files map[string]string) *Resolver {
	return NewResolver(Config{
		Matcher:  matcher,
		ReadFile: fakeReader(files),
	})
}

func TestResolve_MutualExclusivityRejectedBeforeIO(t *testing.T) {
	reads := 0
	r := NewResolver(Config{
		ReadFile: func(string) ([]byte, error) {
			reads++
			return nil, nil
		},
	})
	tmpl := &template.Template{Name: "t", Type: "atomic", FilePaths: []string{"/a"}}
	req := &core.SubtaskRequest{
		Type: "atomic", Name: "t",
		ContextMgmt: &core.ContextManagement{
			InheritContext: core.InheritPtr(core.InheritFull),
			FreshContext:   core.FreshPtr(core.FreshEnabled),
		},
	}

	res, failed := r.Resolve(context.Background(), tmpl, req, nil)
	require.Nil(t, res)
	require.NotNil(t, failed)
	e := failed.Notes.Error()
	require.NotNil(t, e)
	assert.Equal(t, core.ReasonContextConstraintViol, e.Reason)
	assert.Zero(t, reads, "a constraint violation must not perform I/O")
}

func TestResolve_ExplicitPathsWinAndKeepOrder(t *testing.T) {
	files := map[string]string{"/b": "bee", "/a": "ay"}
	r := newTestResolver(nil, files)
	tmpl := &template.Template{Name: "t", Type: "atomic", FilePaths: []string{"/ignored"}}
	req := &core.SubtaskRequest{Type: "atomic", Name: "t", FilePaths: []string{"/b", "/a", "/b"}}

	res, failed := r.Resolve(context.Background(), tmpl, req, nil)
	require.Nil(t, failed)
	assert.Equal(t, SourceExplicit, res.Source)
	assert.Equal(t, []string{"/b", "/a"}, res.FilePaths, "deduplicated, first occurrence kept")
	assert.Equal(t, 2, res.FilesCount)

	want := "<<<FILE path=\"/b\">>>bee<<<END>>>\n<<<FILE path=\"/a\">>>ay<<<END>>>"
	if diff := cmp.Diff(want, res.ContextString); diff != "" {
		t.Errorf("context block mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_UnreadableFileGetsErrorMarker(t *testing.T) {
	r := newTestResolver(nil, map[string]string{})
	tmpl := &template.Template{Name: "t", Type: "atomic"}
	req := &core.SubtaskRequest{Type: "atomic", Name: "t", FilePaths: []string{"/missing"}}

	res, failed := r.Resolve(context.Background(), tmpl, req, nil)
	require.Nil(t, failed)
	assert.Contains(t, res.ContextString, `<<<FILE path="/missing" error=`)
}

func TestResolve_FreshContextUsesMatcherOrdering(t *testing.T) {
	m := &stubMatcher{matches: []core.MatchItem{
		{SourcePath: "/low", RelevanceScore: 0.2, ContentType: core.ContentFilePathOnly},
		{SourcePath: "/zebra", RelevanceScore: 0.9, ContentType: core.ContentFilePathOnly},
		{SourcePath: "/alpha", RelevanceScore: 0.9, ContentType: core.ContentFilePathOnly},
	}}
	files := map[string]string{"/low": "l", "/zebra": "z", "/alpha": "a"}
	r := newTestResolver(m, files)
	tmpl := &template.Template{
		Name: "t", Type: "atomic", Subtype: "subtask",
		Description: "find the relevant files",
	}
	req := &core.SubtaskRequest{Type: "atomic", Name: "t", Inputs: map[string]any{"q": "zebra"}}

	res, failed := r.Resolve(context.Background(), tmpl, req, nil)
	require.Nil(t, failed)
	assert.Equal(t, core.FreshEnabled, res.Effective.FreshContext)
	// Score descending, ties by path lexical order.
	assert.Equal(t, []string{"/alpha", "/zebra", "/low"}, res.FilePaths)
	assert.Equal(t, SourceAutomatic, res.Source)

	require.Len(t, m.queries, 1)
	assert.Equal(t, "find the relevant files", m.queries[0].Query)
}

func TestResolve_DeterministicAcrossRuns(t *testing.T) {
	m := &stubMatcher{matches: []core.MatchItem{
		{SourcePath: "/m1", RelevanceScore: 0.5},
		{SourcePath: "/m2", RelevanceScore: 0.5},
	}}
	files := map[string]string{"/e1": "x", "/m1": "y", "/m2": "z"}
	tmpl := &template.Template{Name: "t", Type: "atomic", Subtype: "subtask"}
	req := &core.SubtaskRequest{Type: "atomic", Name: "t"}

	var first *Resolution
	for i := 0; i < 3; i++ {
		r := newTestResolver(m, files)
		res, failed := r.Resolve(context.Background(), tmpl, req, nil)
		require.Nil(t, failed)
		if first == nil {
			first = res
			continue
		}
		if diff := cmp.Diff(first.ContextString, res.ContextString); diff != "" {
			t.Fatalf("run %d produced a different context block:\n%s", i, diff)
		}
		assert.Equal(t, first.FilePaths, res.FilePaths)
	}
}

func TestResolve_InheritFullCarriesParentContext(t *testing.T) {
	r := newTestResolver(nil, map[string]string{})
	tmpl := &template.Template{Name: "t", Type: "atomic"} // standard: inherit full
	req := &core.SubtaskRequest{Type: "atomic", Name: "t"}
	parent := &ParentContext{ContextString: "PARENT BLOCK"}

	res, failed := r.Resolve(context.Background(), tmpl, req, parent)
	require.Nil(t, failed)
	assert.Contains(t, res.ContextString, "PARENT BLOCK")
	assert.Equal(t, SourceInherited, res.Source)
}

func TestResolve_AccumulationFormats(t *testing.T) {
	r := newTestResolver(nil, map[string]string{})
	tmpl := &template.Template{Name: "t", Type: "atomic"}
	req := &core.SubtaskRequest{
		Type: "atomic", Name: "t",
		ContextMgmt: &core.ContextManagement{AccumulateData: core.BoolPtr(true)},
	}
	parent := &ParentContext{
		ContextString: "PARENT",
		Accumulated: []StepOutput{
			{Status: core.StatusComplete, Content: "step one says hello", Notes: core.Notes{"template_used": "step1"}},
		},
	}

	res, failed := r.Resolve(context.Background(), tmpl, req, parent)
	require.Nil(t, failed)
	assert.Contains(t, res.ContextString, "status=COMPLETE")
	assert.Contains(t, res.ContextString, "template=step1")
	assert.NotContains(t, res.ContextString, "step one says hello", "minimal mode omits content")

	req.ContextMgmt.AccumulationFormat = core.FormatPtr(core.FormatFull)
	res, failed = r.Resolve(context.Background(), tmpl, req, parent)
	require.Nil(t, failed)
	assert.Contains(t, res.ContextString, "step one says hello")
}

func TestResolve_EmptyContextWarns(t *testing.T) {
	r := newTestResolver(nil, map[string]string{})
	tmpl := &template.Template{Name: "t", Type: "atomic"}
	req := &core.SubtaskRequest{
		Type: "atomic", Name: "t",
		ContextMgmt: &core.ContextManagement{
			InheritContext: core.InheritPtr(core.InheritNone),
			FreshContext:   core.FreshPtr(core.FreshDisabled),
		},
	}

	res, failed := r.Resolve(context.Background(), tmpl, req, nil)
	require.Nil(t, failed)
	assert.Equal(t, "EMPTY_CONTEXT", res.Warning)
	assert.Empty(t, res.ContextString)
}

func TestResolve_AccumulationFormatAliases(t *testing.T) {
	eff, err := core.Resolve(core.SubtypeStandard, nil, &core.ContextManagement{
		AccumulationFormat: core.FormatPtr("full_output"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.FormatFull, eff.AccumulationFormat)

	eff, err = core.Resolve(core.SubtypeStandard, nil, &core.ContextManagement{
		AccumulationFormat: core.FormatPtr("notes_only"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.FormatMinimal, eff.AccumulationFormat)
}
