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

// Package contextres merges inheritance, accumulation and fresh-lookup
// settings into the final set of files and strings passed to the LLM.
// The merge itself is pure; the only I/O is reading the selected files,
// running a template's command file-paths source, and calling the
// associative matcher.
package contextres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// Source labels where the resolved file set came from, recorded in the
// task result's notes as context_source.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceTemplate  Source = "template"
	SourceAutomatic Source = "automatic"
	SourceInherited Source = "inherited"
	SourceNone      Source = "none"
)

// FileReader loads a file's contents. Injectable so tests and the
// sandboxed CLI can restrict what the resolver may read.
type FileReader func(path string) ([]byte, error)

// StepOutput is one prior step's outcome, carried by a parent for
// accumulation.
type StepOutput struct {
	Status  core.Status
	Content string
	Notes   core.Notes
}

// ParentContext is what an enclosing task passes down to a child.
type ParentContext struct {
	ContextString string
	FilePaths     []string
	Accumulated   []StepOutput
}

// Resolution is the resolver's output: the assembled context block, the
// ordered file set behind it, and the effective settings that produced
// both.
type Resolution struct {
	ContextString string
	FilePaths     []string
	Effective     core.EffectiveContextManagement
	Source        Source
	FilesCount    int
	Warning       string
}

// Resolver is the Context Resolution Pipeline.
type Resolver struct {
	matcher  core.AssociativeMatcher
	shell    tool.Executor
	readFile FileReader
	log      *slog.Logger
}

// Config assembles a Resolver. Shell runs a template's command
// file-paths source (nil disables that source); ReadFile defaults to
// os.ReadFile.
type Config struct {
	Matcher  core.AssociativeMatcher
	Shell    tool.Executor
	ReadFile FileReader
	Logger   *slog.Logger
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg Config) *Resolver {
	readFile := cfg.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Resolver{
		matcher:  cfg.Matcher,
		shell:    cfg.Shell,
		readFile: readFile,
		log:      log,
	}
}

// Resolve merges defaults + template + request settings, validates the
// mutual-exclusivity invariant before any I/O, resolves the file set,
// and assembles the context block. A constraint violation returns a
// FAILED result; all other outcomes return a Resolution.
func (r *Resolver) Resolve(ctx context.Context, tmpl *template.Template, req *core.SubtaskRequest, parent *ParentContext) (*Resolution, *core.TaskResult) {
	subtype := effectiveSubtype(tmpl, req)

	var tmplOverlay *core.ContextManagement
	if tmpl != nil {
		tmplOverlay = tmpl.ContextManagement
	}
	var reqOverlay *core.ContextManagement
	if req != nil {
		reqOverlay = req.ContextMgmt
	}
	eff, err := core.Resolve(subtype, tmplOverlay, reqOverlay)
	if err != nil {
		return nil, core.Failed(core.ReasonContextConstraintViol, err.Error(), map[string]any{
			"subtype": string(subtype),
		})
	}

	res := &Resolution{Effective: eff, Source: SourceNone}

	explicit, source, failure := r.resolveFilePaths(ctx, tmpl, req)
	if failure != nil {
		return nil, failure
	}
	res.Source = source

	var matched []string
	if eff.FreshContext == core.FreshEnabled {
		var merr error
		matched, merr = r.freshMatch(ctx, tmpl, req)
		if merr != nil {
			return nil, core.Failed(core.ReasonContextMatchingFailure, merr.Error(), nil)
		}
		if res.Source == SourceNone && len(matched) > 0 {
			res.Source = SourceAutomatic
		}
	}

	inherited := r.inheritedContext(ctx, eff, tmpl, req, parent)
	if inherited != "" && res.Source == SourceNone {
		res.Source = SourceInherited
	}

	res.FilePaths = dedupe(append(append([]string{}, explicit...), matched...))
	res.FilesCount = len(res.FilePaths)

	var sections []string
	if inherited != "" {
		sections = append(sections, inherited)
	}
	if eff.AccumulateData && parent != nil && len(parent.Accumulated) > 0 {
		sections = append(sections, formatAccumulated(parent.Accumulated, eff.AccumulationFormat))
	}
	if block := r.formatFiles(res.FilePaths); block != "" {
		sections = append(sections, block)
	}
	res.ContextString = strings.Join(sections, "\n\n")

	if eff.IsEmpty() && len(res.FilePaths) == 0 {
		res.Warning = "EMPTY_CONTEXT"
		r.log.Warn("resolved an empty context", "subtype", string(subtype))
	}
	return res, nil
}

func effectiveSubtype(tmpl *template.Template, req *core.SubtaskRequest) core.Subtype {
	if req != nil && req.Subtype != "" {
		return core.Subtype(req.Subtype)
	}
	if tmpl != nil {
		return tmpl.EffectiveSubtype()
	}
	return core.SubtypeStandard
}

// resolveFilePaths applies the precedence: request paths verbatim, then
// the template's literal list, then its file-paths source.
func (r *Resolver) resolveFilePaths(ctx context.Context, tmpl *template.Template, req *core.SubtaskRequest) ([]string, Source, *core.TaskResult) {
	if req != nil && len(req.FilePaths) > 0 {
		return req.FilePaths, SourceExplicit, nil
	}
	if tmpl == nil {
		return nil, SourceNone, nil
	}
	if len(tmpl.FilePaths) > 0 {
		return tmpl.FilePaths, SourceTemplate, nil
	}
	if tmpl.FilePathsSource == nil {
		return nil, SourceNone, nil
	}

	switch tmpl.FilePathsSource.Type {
	case template.FilePathsLiteral:
		return tmpl.FilePathsSource.Literal, SourceTemplate, nil

	case template.FilePathsCommand:
		paths, err := r.commandPaths(ctx, tmpl.FilePathsSource.Command)
		if err != nil {
			return nil, SourceNone, core.Failed(core.ReasonContextRetrievalFailure,
				fmt.Sprintf("file_paths_source command: %v", err),
				map[string]any{"command": tmpl.FilePathsSource.Command})
		}
		return paths, SourceTemplate, nil

	case template.FilePathsDescription:
		paths, err := r.matchPaths(ctx, core.MatchQuery{Query: tmpl.FilePathsSource.Description})
		if err != nil {
			return nil, SourceNone, core.Failed(core.ReasonContextMatchingFailure, err.Error(), nil)
		}
		return paths, SourceAutomatic, nil
	}
	return nil, SourceNone, nil
}

// commandPaths runs the shell command and keeps one existing absolute
// path per stdout line.
func (r *Resolver) commandPaths(ctx context.Context, command string) ([]string, error) {
	if r.shell == nil {
		return nil, fmt.Errorf("no shell runner configured")
	}
	out, err := r.shell(ctx, map[string]any{"command": command})
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		p := strings.TrimSpace(line)
		if p == "" || !filepath.IsAbs(p) {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// freshMatch queries the associative matcher with the template
// description as the primary query plus the request's inputs and hints.
func (r *Resolver) freshMatch(ctx context.Context, tmpl *template.Template, req *core.SubtaskRequest) ([]string, error) {
	q := core.MatchQuery{}
	if tmpl != nil {
		q.Query = tmpl.Description
	}
	if req != nil {
		q.Inputs = req.Inputs
		q.History = req.TemplateHints
	}
	return r.matchPaths(ctx, q)
}

// matchPaths runs one associative match and returns paths in
// score-descending order, ties broken by path lexical order.
func (r *Resolver) matchPaths(ctx context.Context, q core.MatchQuery) ([]string, error) {
	if r.matcher == nil {
		return nil, nil
	}
	result, err := r.matcher.Match(ctx, q)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%s", result.Error)
	}
	matches := append([]core.MatchItem{}, result.Matches...)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].RelevanceScore != matches[j].RelevanceScore {
			return matches[i].RelevanceScore > matches[j].RelevanceScore
		}
		return matches[i].SourcePath < matches[j].SourcePath
	})
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.SourcePath != "" {
			paths = append(paths, m.SourcePath)
		}
	}
	return paths, nil
}

// inheritedContext returns the parent context slice the settings allow:
// all of it for inherit=full, an associatively matched subset for
// inherit=subset, nothing otherwise.
func (r *Resolver) inheritedContext(ctx context.Context, eff core.EffectiveContextManagement, tmpl *template.Template, req *core.SubtaskRequest, parent *ParentContext) string {
	if parent == nil || parent.ContextString == "" {
		return ""
	}
	switch eff.InheritContext {
	case core.InheritFull:
		return parent.ContextString
	case core.InheritSubset:
		subset, err := r.subsetOf(ctx, tmpl, req, parent)
		if err != nil {
			r.log.Warn("subset inheritance match failed, inheriting nothing", "error", err)
			return ""
		}
		return subset
	default:
		return ""
	}
}

// subsetOf filters the parent's file paths to those the matcher still
// considers relevant to this task.
func (r *Resolver) subsetOf(ctx context.Context, tmpl *template.Template, req *core.SubtaskRequest, parent *ParentContext) (string, error) {
	matched, err := r.freshMatch(ctx, tmpl, req)
	if err != nil {
		return "", err
	}
	keep := make(map[string]bool, len(matched))
	for _, p := range matched {
		keep[p] = true
	}
	var kept []string
	for _, p := range parent.FilePaths {
		if keep[p] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "", nil
	}
	return r.formatFiles(kept), nil
}

// formatAccumulated renders prior step outputs. Minimal mode carries
// only status and notes metadata; full mode carries the content too.
func formatAccumulated(steps []StepOutput, format core.AccumulationFormat) string {
	var b strings.Builder
	b.WriteString("Prior step outputs:")
	for i, s := range steps {
		fmt.Fprintf(&b, "\n[step %d] status=%s", i+1, s.Status)
		if tu, ok := s.Notes["template_used"].(string); ok {
			fmt.Fprintf(&b, " template=%s", tu)
		}
		if e := s.Notes.Error(); e != nil {
			fmt.Fprintf(&b, " error=%s", e.Reason)
		}
		if format == core.FormatFull && s.Content != "" {
			b.WriteString("\n")
			b.WriteString(s.Content)
		}
	}
	return b.String()
}

// formatFiles loads each path and wraps it in a file marker. A file
// that cannot be read is represented inline with an error marker, never
// silently dropped.
func (r *Resolver) formatFiles(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteString("\n")
		}
		data, err := r.readFile(p)
		if err != nil {
			fmt.Fprintf(&b, "<<<FILE path=%q error=%q>>>", p, err.Error())
			continue
		}
		fmt.Fprintf(&b, "<<<FILE path=%q>>>%s<<<END>>>", p, data)
	}
	return b.String()
}

// dedupe drops later duplicates, keeping first occurrence order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
