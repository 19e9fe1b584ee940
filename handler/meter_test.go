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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
)

func TestMeter_AllowsWithinLimits(t *testing.T) {
	m := NewResourceMeter(2, 1000, 0, 0)
	require.Nil(t, m.CheckBeforeCall(100, ""))
	m.RecordTurn(100, 120)
	require.Nil(t, m.CheckBeforeCall(100, ""))
	m.RecordTurn(100, 110)
	assert.Equal(t, 2, m.TurnsUsed())
	assert.Equal(t, 230, m.TokensUsed())
}

func TestMeter_TurnsExhaustedBeforeCall(t *testing.T) {
	m := NewResourceMeter(1, 0, 0, 0)
	m.RecordTurn(10, 10)

	res := m.CheckBeforeCall(10, "partial text")
	require.NotNil(t, res)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, "partial text", res.Content)

	e := res.Notes.Error()
	require.NotNil(t, e)
	assert.Equal(t, core.ErrorResourceExhaustion, e.Type)
	assert.Equal(t, core.ResourceTurns, e.Details["resource"])
}

func TestMeter_TokensExhaustedBeforeCall(t *testing.T) {
	m := NewResourceMeter(10, 100, 0, 0)
	m.RecordTurn(10, 90)

	res := m.CheckBeforeCall(20, "")
	require.NotNil(t, res)
	e := res.Notes.Error()
	require.NotNil(t, e)
	assert.Equal(t, core.ResourceTokens, e.Details["resource"])
}

func TestMeter_ContextWindowFraction(t *testing.T) {
	m := NewResourceMeter(10, 0, 1000, 0.5)

	require.Nil(t, m.CheckBeforeCall(400, ""))
	m.RecordTurn(400, 0)
	assert.InDelta(t, 0.4, m.ContextWindowFraction(), 1e-9)

	res := m.CheckBeforeCall(600, "")
	require.NotNil(t, res)
	e := res.Notes.Error()
	require.NotNil(t, e)
	assert.Equal(t, core.ResourceContextWindow, e.Details["resource"])
}

func TestMeter_Monotonic(t *testing.T) {
	m := NewResourceMeter(100, 0, 0, 0)
	prevTurns, prevTokens := 0, 0
	for i := 0; i < 5; i++ {
		m.RecordTurn(10, 10)
		assert.GreaterOrEqual(t, m.TurnsUsed(), prevTurns)
		assert.GreaterOrEqual(t, m.TokensUsed(), prevTokens)
		prevTurns, prevTokens = m.TurnsUsed(), m.TokensUsed()
	}
}

func TestMeter_WarnHookFiresOncePerResource(t *testing.T) {
	m := NewResourceMeter(10, 0, 0, 0)
	var warned []core.ExhaustedResource
	m.SetWarnFunc(func(resource core.ExhaustedResource, fraction float64) {
		warned = append(warned, resource)
		assert.GreaterOrEqual(t, fraction, DefaultWarnThreshold)
	})

	for i := 0; i < 9; i++ {
		m.RecordTurn(1, 0)
	}
	assert.Equal(t, []core.ExhaustedResource{core.ResourceTurns}, warned)
}
