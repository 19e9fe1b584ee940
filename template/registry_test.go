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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndFindByName(t *testing.T) {
	r := NewRegistry()
	tmpl := validTemplate()
	require.NoError(t, r.Register(tmpl))

	found, ok := r.Find("summarize_file")
	require.True(t, ok)
	assert.Same(t, tmpl, found)
}

func TestRegistry_FindByTypeSubtype(t *testing.T) {
	r := NewRegistry()
	tmpl := validTemplate()
	tmpl.Name = "explain_diff"
	tmpl.Subtype = "code_review"
	require.NoError(t, r.Register(tmpl))

	found, ok := r.Find("code_review")
	require.True(t, ok)
	assert.Same(t, tmpl, found)
}

func TestRegistry_Upsert(t *testing.T) {
	r := NewRegistry()
	first := validTemplate()
	require.NoError(t, r.Register(first))

	second := validTemplate()
	second.Description = "a replacement template with the same name"
	require.NoError(t, r.Register(second))

	found, ok := r.Find("summarize_file")
	require.True(t, ok)
	assert.Same(t, second, found)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_InvalidTemplateNotRegistered(t *testing.T) {
	r := NewRegistry()
	bad := validTemplate()
	bad.Name = ""
	err := r.Register(bad)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_FindMatching(t *testing.T) {
	r := NewRegistry()

	a := validTemplate()
	a.Name = "summarize_file"
	a.Description = "summarize a source file in the requested style"
	require.NoError(t, r.Register(a))

	b := validTemplate()
	b.Name = "translate_text"
	b.Description = "translate text into another spoken language"
	require.NoError(t, r.Register(b))

	c := validTemplate()
	c.Name = "unrelated"
	c.Description = "zzz qqq wwwxyz"
	require.NoError(t, r.Register(c))

	matches := r.FindMatching("please summarize this source file for me")
	require.NotEmpty(t, matches)
	assert.Equal(t, "summarize_file", matches[0].Template.Name)
	for _, m := range matches {
		assert.NotEqual(t, "unrelated", m.Template.Name)
	}
}

func TestRegistry_FindMatching_StableTieBreak(t *testing.T) {
	r := NewRegistry()

	first := validTemplate()
	first.Name = "first"
	first.Description = "alpha beta gamma"
	require.NoError(t, r.Register(first))

	second := validTemplate()
	second.Name = "second"
	second.Description = "alpha beta gamma"
	require.NoError(t, r.Register(second))

	matches := r.FindMatching("alpha beta gamma")
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Template.Name)
	assert.Equal(t, "second", matches[1].Template.Name)
	assert.Equal(t, matches[0].Score, matches[1].Score)
}

func TestRegistry_List_SortedByName(t *testing.T) {
	r := NewRegistry()
	b := validTemplate()
	b.Name = "b_template"
	a := validTemplate()
	a.Name = "a_template"
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(a))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a_template", list[0].Name)
	assert.Equal(t, "b_template", list[1].Name)
}
