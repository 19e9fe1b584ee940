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

package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
)

func newTestIndex(t *testing.T) *core.FileIndex {
	t.Helper()
	index := core.NewFileIndex()
	require.NoError(t, index.Put("/src/auth/login.go", "authentication login handler with session tokens"))
	require.NoError(t, index.Put("/src/auth/logout.go", "authentication logout handler"))
	require.NoError(t, index.Put("/src/billing/invoice.go", "invoice generation and currency rounding"))
	return index
}

func TestMatch_RanksByRelevance(t *testing.T) {
	m := NewIndexMatcher(newTestIndex(t))
	result, err := m.Match(context.Background(), core.MatchQuery{Query: "authentication login"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	assert.Equal(t, "/src/auth/login.go", result.Matches[0].SourcePath)
	for i := 1; i < len(result.Matches); i++ {
		assert.GreaterOrEqual(t, result.Matches[i-1].RelevanceScore, result.Matches[i].RelevanceScore)
	}
	for _, item := range result.Matches {
		assert.GreaterOrEqual(t, item.RelevanceScore, 0.0)
		assert.LessOrEqual(t, item.RelevanceScore, 1.0)
	}
}

func TestMatch_DeterministicTieBreak(t *testing.T) {
	index := core.NewFileIndex()
	require.NoError(t, index.Put("/b.go", "widget frobnicator"))
	require.NoError(t, index.Put("/a.go", "widget frobnicator"))
	m := NewIndexMatcher(index)

	for i := 0; i < 5; i++ {
		result, err := m.Match(context.Background(), core.MatchQuery{Query: "widget"})
		require.NoError(t, err)
		require.Len(t, result.Matches, 2)
		assert.Equal(t, "/a.go", result.Matches[0].SourcePath, "equal scores break by path order")
	}
}

func TestMatch_EmptyQuery(t *testing.T) {
	m := NewIndexMatcher(newTestIndex(t))
	result, err := m.Match(context.Background(), core.MatchQuery{})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestMatch_NoHitsBelowFloor(t *testing.T) {
	m := NewIndexMatcher(newTestIndex(t))
	result, err := m.Match(context.Background(), core.MatchQuery{Query: "zzz qqq xxx unrelated nonsense words"})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}
