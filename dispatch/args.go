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

// splitArgs tokenises an identifier line, honouring single and double
// quotes so quoted values may contain spaces.
func splitArgs(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote byte
	inToken := false

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == ' ' || c == '\t' || c == '\n':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteByte(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return tokens, nil
}

// parseKeyValues converts key=value tokens into an inputs map. Values
// that look like JSON (objects, arrays, numbers, booleans, null) are
// decoded; everything else is a literal string. A value that starts
// like JSON but fails to decode is an input validation failure before
// any execution.
func parseKeyValues(tokens []string) (map[string]any, *core.TaskResult) {
	inputs := make(map[string]any, len(tokens))
	for _, tok := range tokens {
		key, raw, found := strings.Cut(tok, "=")
		if !found || key == "" {
			return nil, core.Failed(core.ReasonInputValidationFailure,
				fmt.Sprintf("argument %q is not of the form key=value", tok), nil)
		}
		value, failure := parseValue(key, raw)
		if failure != nil {
			return nil, failure
		}
		inputs[key] = value
	}
	return inputs, nil
}

func parseValue(key, raw string) (any, *core.TaskResult) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	switch trimmed[0] {
	case '{', '[':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return nil, core.Failed(core.ReasonInputValidationFailure,
				fmt.Sprintf("argument %s: malformed JSON value: %v", key, err), nil)
		}
		return v, nil
	}
	switch trimmed {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	var n float64
	if err := json.Unmarshal([]byte(trimmed), &n); err == nil {
		return n, nil
	}
	return raw, nil
}
