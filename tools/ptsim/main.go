// Copyright 2026 The gVisor Authors.
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

// Binary ptsim drives the kernel page-table manager on the host, over an
// mmap'd arena standing in for physical memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/term"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/tools/ptsim/cmd"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging.")
	logFormat = flag.String("log-format", "", "log format: text, json, or console. Defaults to console on a terminal and text otherwise.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Layout), "")
	subcommands.Register(new(cmd.Stress), "")

	const codecGroup = "codec"
	subcommands.Register(new(cmd.Encode), codecGroup)
	subcommands.Register(new(cmd.Decode), codecGroup)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	format := *logFormat
	if format == "" {
		format = defaultLogFormat(os.Stderr)
	}
	e, err := newEmitter(format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	log.SetTarget(e)
	if *debug {
		log.SetLevel(log.Debug)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}

// defaultLogFormat returns the log format used for f when none is given.
func defaultLogFormat(f *os.File) string {
	if term.IsTerminal(int(f.Fd())) {
		return "console"
	}
	return "text"
}

func newEmitter(format string, w io.Writer) (log.Emitter, error) {
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: w}}, nil
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}, nil
	case "console":
		return log.ConsoleEmitter{Writer: &log.Writer{Next: w}}, nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'console'", format)
}
