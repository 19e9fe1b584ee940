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

// Package logger configures the process-wide slog logger used by every
// runtime component. Below debug level, records emitted by third-party
// libraries (which also log through slog once SetDefault runs) are
// suppressed so the orchestrator's own dispatch/handler/subtask lines
// stay readable.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePathPrefix = "github.com/mrivas-oss/taskrt"

// ParseLevel converts a level string (debug, info, warn, error) to a
// slog.Level, defaulting to warn for anything unrecognised.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// moduleFilterHandler drops records originating outside this module
// unless the minimum level is debug.
type moduleFilterHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *moduleFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *moduleFilterHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || fromThisModule(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *moduleFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *moduleFilterHandler) WithGroup(name string) slog.Handler {
	return &moduleFilterHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func fromThisModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.HasPrefix(fn.Name(), modulePathPrefix)
}

// plainHandler writes "LEVEL message key=value ..." lines, the compact
// format the CLI uses on stderr. The verbose slog.TextHandler format is
// still available by passing format="verbose" to Init.
type plainHandler struct {
	minLevel slog.Level
	writer   io.Writer
	attrs    []slog.Attr
}

func (h *plainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *plainHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder
	level := record.Level.String()
	if level == "WARNING" {
		level = "WARN"
	}
	buf.WriteString(level)
	buf.WriteString(" ")
	buf.WriteString(record.Message)
	writeAttr := func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	record.Attrs(writeAttr)
	buf.WriteString("\n")
	_, err := io.WriteString(h.writer, buf.String())
	return err
}

func (h *plainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &plainHandler{minLevel: h.minLevel, writer: h.writer, attrs: merged}
}

func (h *plainHandler) WithGroup(string) slog.Handler { return h }

// Init installs the process-wide logger writing to output. format is
// "plain" (default) or "verbose" for the standard slog text format.
func Init(level slog.Level, output *os.File, format string) {
	var handler slog.Handler
	if format == "verbose" {
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	} else {
		handler = &plainHandler{minLevel: level, writer: output}
	}

	defaultLogger = slog.New(&moduleFilterHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates an append-mode log file, returning the
// handle and a close function.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// Get returns the configured logger, initialising a default (info level,
// plain format, stderr) on first use.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "plain")
	}
	return defaultLogger
}
