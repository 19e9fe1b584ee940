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

package handler

import (
	"github.com/mrivas-oss/taskrt/core"
)

// DefaultWarnThreshold is the usage fraction at which the warning hook
// fires for a resource.
const DefaultWarnThreshold = 0.8

// WarnFunc receives a resource name and its current usage fraction when
// the fraction first crosses the warn threshold. Injected rather than
// logged directly so callers decide where warnings go.
type WarnFunc func(resource core.ExhaustedResource, fraction float64)

// ResourceMeter tracks turns, token counts and the context-window
// fraction for one handler session. Counters only ever increase; the
// pre-call check runs before the LLM call so a breach never spends
// provider tokens.
type ResourceMeter struct {
	turnsUsed   int
	turnsLimit  int
	tokensUsed  int
	tokensLimit int

	contextWindow    int     // model maximum context tokens
	maxWindowFrac    float64 // allowed fraction of the context window per prompt
	lastPromptTokens int

	warnThreshold float64
	onWarn        WarnFunc
	warned        map[core.ExhaustedResource]bool
}

// NewResourceMeter builds a meter. contextWindow is the model's maximum
// context size in tokens; maxWindowFrac bounds how much of it a single
// prompt may occupy (0 disables the check).
func NewResourceMeter(turnsLimit, tokensLimit, contextWindow int, maxWindowFrac float64) *ResourceMeter {
	return &ResourceMeter{
		turnsLimit:    turnsLimit,
		tokensLimit:   tokensLimit,
		contextWindow: contextWindow,
		maxWindowFrac: maxWindowFrac,
		warnThreshold: DefaultWarnThreshold,
		warned:        make(map[core.ExhaustedResource]bool),
	}
}

// SetWarnFunc installs the warning hook.
func (m *ResourceMeter) SetWarnFunc(fn WarnFunc) { m.onWarn = fn }

// TurnsUsed returns the number of assistant turns consumed so far.
func (m *ResourceMeter) TurnsUsed() int { return m.turnsUsed }

// TokensUsed returns the cumulative token count consumed so far.
func (m *ResourceMeter) TokensUsed() int { return m.tokensUsed }

// ContextWindowFraction returns the last prompt's share of the model's
// context window, or 0 when the window size is unknown.
func (m *ResourceMeter) ContextWindowFraction() float64 {
	if m.contextWindow <= 0 {
		return 0
	}
	return float64(m.lastPromptTokens) / float64(m.contextWindow)
}

// CheckBeforeCall runs the pre-call admission check for a prompt of
// promptTokens. It returns a RESOURCE_EXHAUSTION result (with partial
// preserved as content) when the next turn would breach a limit, nil
// when the call may proceed.
func (m *ResourceMeter) CheckBeforeCall(promptTokens int, partial string) *core.TaskResult {
	if m.turnsLimit > 0 && m.turnsUsed+1 > m.turnsLimit {
		return core.Exhausted(core.ResourceTurns, float64(m.turnsUsed+1), float64(m.turnsLimit), partial)
	}
	if m.tokensLimit > 0 && m.tokensUsed+promptTokens > m.tokensLimit {
		return core.Exhausted(core.ResourceTokens, float64(m.tokensUsed+promptTokens), float64(m.tokensLimit), partial)
	}
	if m.contextWindow > 0 && m.maxWindowFrac > 0 {
		frac := float64(promptTokens) / float64(m.contextWindow)
		if frac > m.maxWindowFrac {
			return core.Exhausted(core.ResourceContextWindow, frac, m.maxWindowFrac, partial)
		}
	}
	return nil
}

// RecordTurn accounts for one completed assistant turn: the prompt that
// was sent and the tokens the provider reported consuming. Warning
// hooks fire at most once per resource.
func (m *ResourceMeter) RecordTurn(promptTokens, reportedTokens int) {
	m.turnsUsed++
	m.lastPromptTokens = promptTokens
	if reportedTokens > 0 {
		m.tokensUsed += reportedTokens
	} else {
		m.tokensUsed += promptTokens
	}

	m.maybeWarn(core.ResourceTurns, m.fraction(m.turnsUsed, m.turnsLimit))
	m.maybeWarn(core.ResourceTokens, m.fraction(m.tokensUsed, m.tokensLimit))
	m.maybeWarn(core.ResourceContextWindow, m.ContextWindowFraction())
}

func (m *ResourceMeter) fraction(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit)
}

func (m *ResourceMeter) maybeWarn(resource core.ExhaustedResource, fraction float64) {
	if m.onWarn == nil || m.warned[resource] || fraction < m.warnThreshold {
		return
	}
	m.warned[resource] = true
	m.onWarn(resource, fraction)
}
