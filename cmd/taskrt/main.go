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

// Command taskrt runs one task request to completion:
//
//	taskrt task <identifier> [key=value ...] [--help]
//	taskrt task '(sexp ...)'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrivas-oss/taskrt/config"
	"github.com/mrivas-oss/taskrt/dispatch"
	"github.com/mrivas-oss/taskrt/logger"
	"github.com/mrivas-oss/taskrt/runtime"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  taskrt task [flags] <identifier> [key=value ...] [--help]
  taskrt task [flags] '(sexp ...)'

flags:
  -config path    configuration file (YAML)
  -output mode    json or human (default json)
  -log-level lvl  debug, info, warn, error`)
}

func run(args []string) int {
	if len(args) == 0 || args[0] != "task" {
		usage()
		return dispatch.ExitParseError
	}

	taskCmd := flag.NewFlagSet("task", flag.ContinueOnError)
	configPath := taskCmd.String("config", "", "configuration file")
	output := taskCmd.String("output", "", "output mode: json or human")
	logLevel := taskCmd.String("log-level", "", "log level")
	logFormat := taskCmd.String("log-format", "", "log format: plain or verbose")
	if err := taskCmd.Parse(args[1:]); err != nil {
		return dispatch.ExitParseError
	}
	rest := taskCmd.Args()
	if len(rest) == 0 {
		usage()
		return dispatch.ExitParseError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr, cfg.LogFormat)

	rt, err := runtime.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := rt.Dispatcher.DispatchTokens(ctx, rest)
	mode := dispatch.ModeJSON
	if cfg.Output == "human" {
		mode = dispatch.ModeHuman
	}
	fmt.Println(dispatch.Format(result, mode))
	return dispatch.ExitCode(result)
}
