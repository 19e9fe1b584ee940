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

package tool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultScriptTimeout bounds system:run_script when the caller does
// not configure one.
const DefaultScriptTimeout = 5 * time.Second

// ShellConfig configures the built-in system:run_script direct tool.
type ShellConfig struct {
	WorkingDirectory string
	Timeout          time.Duration
}

// RunScript executes a shell command with a timeout, mirroring the
// command file-paths source's shell runner. It is
// the executor behind the system:run_script S-expression primitive and
// the command file-paths source.
func RunScript(cfg ShellConfig) Executor {
	return func(ctx context.Context, args map[string]any) (string, error) {
		command, _ := args["command"].(string)
		if command == "" {
			return "", fmt.Errorf("command parameter is required")
		}

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultScriptTimeout
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "sh", "-c", command)
		if cfg.WorkingDirectory != "" {
			cmd.Dir = cfg.WorkingDirectory
		}
		out, err := cmd.CombinedOutput()
		if err != nil {
			return string(out), fmt.Errorf("system:run_script: %w", err)
		}
		return string(out), nil
	}
}

// ReadFileConfig bounds the built-in read_file direct tool.
type ReadFileConfig struct {
	WorkingDirectory string
	MaxFileSize      int64
}

// ReadFile reads a file relative to WorkingDirectory (or absolute),
// enforcing MaxFileSize.
func ReadFile(cfg ReadFileConfig) Executor {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		if path == "" {
			return "", fmt.Errorf("path parameter is required")
		}
		if !filepath.IsAbs(path) && cfg.WorkingDirectory != "" {
			path = filepath.Join(cfg.WorkingDirectory, path)
		}

		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("read_file: %w", err)
		}
		if cfg.MaxFileSize > 0 && info.Size() > cfg.MaxFileSize {
			return "", fmt.Errorf("read_file: %s exceeds max file size %d bytes", path, cfg.MaxFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read_file: %w", err)
		}
		return string(data), nil
	}
}

// WriteFileConfig bounds the built-in write_file direct tool.
type WriteFileConfig struct {
	WorkingDirectory string
}

// WriteFile writes content to path relative to WorkingDirectory (or
// absolute), creating parent directories as needed.
func WriteFile(cfg WriteFileConfig) Executor {
	return func(ctx context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		if path == "" {
			return "", fmt.Errorf("path parameter is required")
		}
		if !filepath.IsAbs(path) && cfg.WorkingDirectory != "" {
			path = filepath.Join(cfg.WorkingDirectory, path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("write_file: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write_file: %w", err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	}
}

// Builtins registers the standard direct tools (system:run_script,
// read_file, write_file) into r.
func Builtins(r *Registry, workdir string) error {
	if err := r.Register("system:run_script", Entry{
		Schema: Schema{
			Name:        "system:run_script",
			Description: "Run a shell command with a timeout and return its combined output.",
			Params: []Param{
				{Name: "command", Type: "string", Required: true, Description: "shell command to execute"},
			},
		},
		Kind:     KindDirect,
		Executor: RunScript(ShellConfig{WorkingDirectory: workdir}),
	}); err != nil {
		return err
	}

	if err := r.Register("read_file", Entry{
		Schema: Schema{
			Name:        "read_file",
			Description: "Read a file's contents from disk.",
			Params: []Param{
				{Name: "path", Type: "string", Required: true, Description: "file path, absolute or relative to the working directory"},
			},
		},
		Kind:     KindDirect,
		Executor: ReadFile(ReadFileConfig{WorkingDirectory: workdir, MaxFileSize: 10 << 20}),
	}); err != nil {
		return err
	}

	return r.Register("write_file", Entry{
		Schema: Schema{
			Name:        "write_file",
			Description: "Write content to a file on disk, creating parent directories as needed.",
			Params: []Param{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			},
		},
		Kind:     KindDirect,
		Executor: WriteFile(WriteFileConfig{WorkingDirectory: workdir}),
	})
}
