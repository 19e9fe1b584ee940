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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/template"
)

// LoadTemplates reads each YAML file — either a single template
// document or a list of templates — and registers every definition.
// The first invalid template aborts the load, so a bad file never
// half-registers.
func LoadTemplates(paths []string, registry *template.Registry) error {
	for _, path := range paths {
		templates, err := readTemplateFile(path)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("register template from %s: %w", path, err)
			}
		}
		for _, t := range templates {
			if err := registry.Register(t); err != nil {
				return fmt.Errorf("register template from %s: %w", path, err)
			}
		}
	}
	return nil
}

func readTemplateFile(path string) ([]*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}

	var list []*template.Template
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var single template.Template
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse template file %s: %w", path, err)
	}
	return []*template.Template{&single}, nil
}

// LoadIndex seeds the global file index from a YAML path -> metadata
// map.
func LoadIndex(path string, index *core.FileIndex) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse index file %s: %w", path, err)
	}
	for p, metadata := range entries {
		if err := index.Put(p, metadata); err != nil {
			return fmt.Errorf("index file %s: %w", path, err)
		}
	}
	return nil
}
