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

import "fmt"

// InheritMode controls how much of a parent's context a subtype starts with.
type InheritMode string

const (
	InheritFull   InheritMode = "full"
	InheritNone   InheritMode = "none"
	InheritSubset InheritMode = "subset"
)

// AccumulationFormat controls how much detail prior-step outputs contribute.
type AccumulationFormat string

const (
	FormatMinimal AccumulationFormat = "minimal"
	FormatFull    AccumulationFormat = "full"
)

// FreshMode toggles associative-match context generation at execution time.
type FreshMode string

const (
	FreshEnabled  FreshMode = "enabled"
	FreshDisabled FreshMode = "disabled"
)

// normalizeAccumulationFormat accepts the legacy aliases
// notes_only/full_output still found in older template files.
func normalizeAccumulationFormat(f AccumulationFormat) AccumulationFormat {
	switch f {
	case "notes_only":
		return FormatMinimal
	case "full_output":
		return FormatFull
	default:
		return f
	}
}

// ContextManagement is the four-knob configuration governing what
// context an atomic task sees.
// Fields are pointers so a partially-specified overlay (template or
// request level) can be shallow-merged over defaults: a nil field means
// "not specified at this layer", not "explicitly false/empty".
type ContextManagement struct {
	InheritContext     *InheritMode        `yaml:"inherit_context,omitempty" json:"inherit_context,omitempty"`
	AccumulateData     *bool               `yaml:"accumulate_data,omitempty" json:"accumulate_data,omitempty"`
	AccumulationFormat *AccumulationFormat `yaml:"accumulation_format,omitempty" json:"accumulation_format,omitempty"`
	FreshContext       *FreshMode          `yaml:"fresh_context,omitempty" json:"fresh_context,omitempty"`
}

// EffectiveContextManagement is a fully-resolved (non-pointer) settings
// set, the output of merging defaults + template + request overlays.
type EffectiveContextManagement struct {
	InheritContext     InheritMode
	AccumulateData     bool
	AccumulationFormat AccumulationFormat
	FreshContext       FreshMode
}

// Subtype is the effective subtype used to look up default context
// management settings.
type Subtype string

const (
	SubtypeStandard              Subtype = "standard"
	SubtypeSubtask               Subtype = "subtask"
	SubtypeSequential            Subtype = "sequential"
	SubtypeReduce                Subtype = "reduce"
	SubtypeScript                Subtype = "script"
	SubtypeDirectorEvaluatorLoop Subtype = "director_evaluator_loop"
	SubtypeScriptRunner          Subtype = "script_runner"
	SubtypeAiderInteractive      Subtype = "aider_interactive"
	SubtypeDirector              Subtype = "director"
)

var defaultsBySubtype = map[Subtype]EffectiveContextManagement{
	SubtypeStandard: {
		InheritContext: InheritFull, AccumulateData: false,
		AccumulationFormat: FormatMinimal, FreshContext: FreshDisabled,
	},
	SubtypeSubtask: {
		InheritContext: InheritNone, AccumulateData: false,
		AccumulationFormat: FormatMinimal, FreshContext: FreshEnabled,
	},
	SubtypeSequential: {
		InheritContext: InheritFull, AccumulateData: true,
		AccumulationFormat: FormatMinimal, FreshContext: FreshDisabled,
	},
	SubtypeReduce: {
		InheritContext: InheritNone, AccumulateData: true,
		AccumulationFormat: FormatMinimal, FreshContext: FreshEnabled,
	},
	SubtypeScript: {
		InheritContext: InheritFull, AccumulateData: false,
		AccumulationFormat: FormatMinimal, FreshContext: FreshDisabled,
	},
	SubtypeDirectorEvaluatorLoop: {
		InheritContext: InheritNone, AccumulateData: true,
		AccumulationFormat: FormatMinimal, FreshContext: FreshEnabled,
	},
}

// DefaultsFor returns the default settings for a subtype, falling back to
// "standard" for any subtype without an entry of its own (script_runner,
// aider_interactive, director, and any user-defined subtype).
func DefaultsFor(subtype Subtype) EffectiveContextManagement {
	if d, ok := defaultsBySubtype[subtype]; ok {
		return d
	}
	return defaultsBySubtype[SubtypeStandard]
}

// Resolve merges defaults, a template-level overlay, and a request-level
// overlay (later overlays win, field by field) and validates the result.
func Resolve(subtype Subtype, templateOverlay, requestOverlay *ContextManagement) (EffectiveContextManagement, error) {
	eff := DefaultsFor(subtype)
	eff.overlay(templateOverlay)
	eff.overlay(requestOverlay)
	eff.AccumulationFormat = normalizeAccumulationFormat(eff.AccumulationFormat)
	if err := eff.Validate(); err != nil {
		return eff, err
	}
	return eff, nil
}

func (e *EffectiveContextManagement) overlay(o *ContextManagement) {
	if o == nil {
		return
	}
	if o.InheritContext != nil {
		e.InheritContext = *o.InheritContext
	}
	if o.AccumulateData != nil {
		e.AccumulateData = *o.AccumulateData
	}
	if o.AccumulationFormat != nil {
		e.AccumulationFormat = normalizeAccumulationFormat(*o.AccumulationFormat)
	}
	if o.FreshContext != nil {
		e.FreshContext = *o.FreshContext
	}
}

// Validate enforces the mutual-exclusivity invariant:
// fresh=enabled implies inherit=none, and inherit in {full,subset} implies
// fresh=disabled.
func (e EffectiveContextManagement) Validate() error {
	if e.FreshContext == FreshEnabled && e.InheritContext != InheritNone {
		return fmt.Errorf("context_constraint_violation: fresh_context=enabled requires inherit_context=none, got %q", e.InheritContext)
	}
	if (e.InheritContext == InheritFull || e.InheritContext == InheritSubset) && e.FreshContext == FreshEnabled {
		return fmt.Errorf("context_constraint_violation: inherit_context=%q requires fresh_context=disabled", e.InheritContext)
	}
	return nil
}

// IsEmpty reports the EMPTY_CONTEXT warning condition:
// inherit=none, accumulate=false, fresh=disabled.
func (e EffectiveContextManagement) IsEmpty() bool {
	return e.InheritContext == InheritNone && !e.AccumulateData && e.FreshContext == FreshDisabled
}

// Ptr helpers let callers build overlay literals tersely, e.g.
// core.ContextManagement{FreshContext: core.FreshPtr(core.FreshEnabled)}.
func InheritPtr(v InheritMode) *InheritMode              { return &v }
func BoolPtr(v bool) *bool                               { return &v }
func FormatPtr(v AccumulationFormat) *AccumulationFormat { return &v }
func FreshPtr(v FreshMode) *FreshMode                    { return &v }
