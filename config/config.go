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

// Package config loads the runtime's configuration: an optional YAML
// file layered under environment variable overrides, with .env file
// support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults for the runtime limits.
const (
	DefaultMaxTurns          = 10
	DefaultMaxDepth          = 5
	DefaultMaxTokensFraction = 0.8
	DefaultTokensLimit       = 200000
)

// Config is the process configuration.
type Config struct {
	Provider   string `koanf:"provider"`
	APIKey     string `koanf:"api_key"`
	Model      string `koanf:"model"`
	BasePrompt string `koanf:"base_prompt"`

	MaxTurns          int     `koanf:"max_turns"`
	MaxDepth          int     `koanf:"max_depth"`
	MaxTokensFraction float64 `koanf:"max_tokens_fraction"`
	TokensLimit       int     `koanf:"tokens_limit"`

	Workdir   string `koanf:"workdir"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Output    string `koanf:"output"`

	// TemplateFiles are YAML files of atomic task definitions loaded
	// into the Template Registry at startup.
	TemplateFiles []string `koanf:"template_files"`

	// IndexFile is an optional YAML path -> metadata map seeding the
	// global file index.
	IndexFile string `koanf:"index_file"`
}

func defaults() *Config {
	return &Config{
		Provider:          "anthropic",
		MaxTurns:          DefaultMaxTurns,
		MaxDepth:          DefaultMaxDepth,
		MaxTokensFraction: DefaultMaxTokensFraction,
		TokensLimit:       DefaultTokensLimit,
		LogLevel:          "warn",
		Output:            "json",
	}
}

// Load reads the optional config file at path (empty skips it), then
// applies environment overrides. A .env file in the working directory
// is honoured first, matching local-development convention.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Workdir = wd
	}
	return cfg, nil
}

// applyEnv overlays the recognised environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("TASK_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("TASK_MAX_TURNS must be a positive integer, got %q", v)
		}
		c.MaxTurns = n
	}
	if v := os.Getenv("TASK_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("TASK_MAX_DEPTH must be a positive integer, got %q", v)
		}
		c.MaxDepth = n
	}
	if v := os.Getenv("TASK_MAX_TOKENS_FRACTION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("TASK_MAX_TOKENS_FRACTION must be in (0,1], got %q", v)
		}
		c.MaxTokensFraction = f
	}
	if v := os.Getenv("TASK_WORKDIR"); v != "" {
		c.Workdir = v
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(c.apiKeyEnvName())
	}
	return nil
}

// apiKeyEnvName returns the provider-dependent credential variable.
func (c *Config) apiKeyEnvName() string {
	switch c.Provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}
