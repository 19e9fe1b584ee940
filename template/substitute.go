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
	"fmt"
	"sort"
	"strings"
)

func sortedCopy(ss []string) []string {
	out := append([]string{}, ss...)
	sort.Strings(out)
	return out
}

// Substitute replaces every {{X}} occurrence in s with the string form
// of params[X]. The substitution environment is exactly params: a
// placeholder without a matching key is an error, and nothing outside
// params can leak in.
func Substitute(s string, params map[string]any) (string, error) {
	var unknown []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			unknown = append(unknown, name)
			return m
		}
		return fmt.Sprint(v)
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("unknown placeholder(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// ValidateInputs checks that inputs carries exactly the template's
// declared parameters, reporting missing and unexpected names.
func (t *Template) ValidateInputs(inputs map[string]any) error {
	declared := t.paramSet()
	var missing, extra []string
	for name := range declared {
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range inputs {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing parameter(s): "+strings.Join(sortedCopy(missing), ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected parameter(s): "+strings.Join(sortedCopy(extra), ", "))
	}
	return fmt.Errorf("template %q: %s", t.Name, strings.Join(parts, "; "))
}
