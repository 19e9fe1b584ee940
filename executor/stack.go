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

package executor

import (
	"github.com/mrivas-oss/taskrt/core"
)

// callStack tracks active SubtaskRequest signatures for one workflow.
// Depth is the number of active spawns; a signature already on the
// stack means the same task with the same inputs is calling itself.
type callStack struct {
	signatures []string
	active     map[string]int
	maxDepth   int
}

func newCallStack(maxDepth int) *callStack {
	if maxDepth <= 0 {
		maxDepth = core.DefaultMaxDepth
	}
	return &callStack{
		active:   make(map[string]int),
		maxDepth: maxDepth,
	}
}

func (s *callStack) depth() int { return len(s.signatures) }

// push admits req onto the stack or returns the execution_halted
// failure that forbids it. Both violations are checked before any LLM
// call is made on the child's behalf.
func (s *callStack) push(req *core.SubtaskRequest) *core.TaskResult {
	if s.depth() >= s.maxDepth {
		return core.Failed(core.ReasonExecutionHalted,
			"maximum subtask depth reached", map[string]any{
				"depth":     s.depth(),
				"max_depth": s.maxDepth,
			})
	}
	sig := req.Signature()
	if s.active[sig] > 0 {
		return core.Failed(core.ReasonExecutionHalted,
			"subtask cycle detected: identical request already executing", map[string]any{
				"depth":     s.depth(),
				"name":      req.Name,
				"signature": sig,
			})
	}
	s.signatures = append(s.signatures, sig)
	s.active[sig]++
	return nil
}

func (s *callStack) pop(req *core.SubtaskRequest) {
	if len(s.signatures) == 0 {
		return
	}
	sig := req.Signature()
	s.signatures = s.signatures[:len(s.signatures)-1]
	if s.active[sig] > 0 {
		s.active[sig]--
	}
}
