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

package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mrivas-oss/taskrt/core"
)

// Mode selects how the final result is rendered.
type Mode string

const (
	ModeJSON  Mode = "json"
	ModeHuman Mode = "human"
)

// Format renders a terminal TaskResult for stdout.
func Format(result *core.TaskResult, mode Mode) string {
	if mode == ModeHuman {
		return formatHuman(result)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"status":"FAILED","content":"","notes":{"error":{"type":"TASK_FAILURE","reason":"unexpected_error","message":%q}}}`, err.Error())
	}
	return string(data)
}

func formatHuman(result *core.TaskResult) string {
	var b strings.Builder
	b.WriteString(string(result.Status))
	if e := result.Notes.Error(); e != nil {
		if e.Reason != "" {
			fmt.Fprintf(&b, " [%s]", e.Reason)
		} else {
			fmt.Fprintf(&b, " [%s]", e.Type)
		}
		if e.Message != "" {
			b.WriteString(" ")
			b.WriteString(e.Message)
		}
	}
	if result.Content != "" {
		b.WriteString("\n")
		b.WriteString(result.Content)
	}
	return b.String()
}

// Exit codes for the task subcommand.
const (
	ExitSuccess            = 0
	ExitParseError         = 2
	ExitInputValidation    = 3
	ExitResourceExhaustion = 4
	ExitTaskFailure        = 5
	ExitIdentifierNotFound = 6
	ExitCancelled          = 7
)

// ExitCode maps a terminal result to the process exit code.
func ExitCode(result *core.TaskResult) int {
	if result.Status != core.StatusFailed {
		return ExitSuccess
	}
	e := result.Notes.Error()
	if e == nil {
		return ExitTaskFailure
	}
	if e.Type == core.ErrorResourceExhaustion {
		return ExitResourceExhaustion
	}
	switch e.Reason {
	case core.ReasonInputValidationFailure, core.ReasonArityMismatch:
		if parsed, ok := e.Details["parse"].(bool); ok && parsed {
			return ExitParseError
		}
		return ExitInputValidation
	case core.ReasonIdentifierNotFound, core.ReasonUndefinedOperator:
		return ExitIdentifierNotFound
	case core.ReasonExecutionHalted:
		if strings.HasPrefix(e.Message, "cancelled") {
			return ExitCancelled
		}
		return ExitTaskFailure
	default:
		return ExitTaskFailure
	}
}
