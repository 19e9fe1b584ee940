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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/template"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTurns, cfg.MaxTurns)
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.InDelta(t, DefaultMaxTokensFraction, cfg.MaxTokensFraction, 1e-9)
	assert.NotEmpty(t, cfg.Workdir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TASK_MAX_TURNS", "3")
	t.Setenv("TASK_MAX_DEPTH", "2")
	t.Setenv("TASK_MAX_TOKENS_FRACTION", "0.5")
	t.Setenv("TASK_WORKDIR", "/tmp/taskwork")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxTurns)
	assert.Equal(t, 2, cfg.MaxDepth)
	assert.InDelta(t, 0.5, cfg.MaxTokensFraction, 1e-9)
	assert.Equal(t, "/tmp/taskwork", cfg.Workdir)
}

func TestLoad_RejectsBadEnvValues(t *testing.T) {
	t.Setenv("TASK_MAX_TURNS", "minus-one")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASK_MAX_TURNS")
}

func TestLoad_YAMLFileWithEnvOnTop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: mock
max_turns: 7
log_level: debug
`), 0o644))
	t.Setenv("TASK_MAX_TURNS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Provider)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9, cfg.MaxTurns, "environment wins over the file")
}

func TestLoadTemplates_ListAndSingle(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte(`
- name: echo
  type: atomic
  params:
    - name: x
  instructions: "Say: {{x}}"
- name: shout
  type: atomic
  subtype: subtask
  params:
    - name: x
  instructions: "SAY {{x}}"
`), 0o644))

	singlePath := filepath.Join(dir, "one.yaml")
	require.NoError(t, os.WriteFile(singlePath, []byte(`
name: whisper
type: atomic
params:
  - name: x
instructions: "say {{x}} quietly"
`), 0o644))

	registry := template.NewRegistry()
	require.NoError(t, LoadTemplates([]string{listPath, singlePath}, registry))
	assert.Equal(t, 3, registry.Count())

	tmpl, ok := registry.Find("shout")
	require.True(t, ok)
	assert.Equal(t, core.SubtypeSubtask, tmpl.EffectiveSubtype())
}

func TestLoadTemplates_InvalidTemplateFailsLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: broken
type: atomic
params:
  - name: x
instructions: "{{y}}"
`), 0o644))

	registry := template.NewRegistry()
	err := LoadTemplates([]string{path}, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "y")
	assert.Zero(t, registry.Count())
}

func TestLoadIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
/src/a.go: "the a module"
/src/b.go: "the b module"
`), 0o644))

	index := core.NewFileIndex()
	require.NoError(t, LoadIndex(path, index))
	assert.Equal(t, 2, index.Len())
	meta, ok := index.Get("/src/a.go")
	require.True(t, ok)
	assert.Equal(t, "the a module", meta)
}
