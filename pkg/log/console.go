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

package log

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ConsoleEmitter emits logs in the kernel console format:
//
//	[LEVEL] (target) -- msg
//
// where target is the package of the logging function. It carries no
// timestamp, since early boot consoles have no clock to read.
type ConsoleEmitter struct {
	*Writer
}

func consoleLevel(level Level) string {
	switch level {
	case Warning:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return "?"
	}
}

// targetOf returns the package path of the function depth frames above its
// caller, or "kernel" if it cannot be determined.
func targetOf(depth int) string {
	pc, _, _, ok := runtime.Caller(depth + 1)
	if !ok {
		return "kernel"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "kernel"
	}
	name := fn.Name()
	// Strip the function name, which follows the first dot after the last
	// slash.
	slash := strings.LastIndexByte(name, '/')
	if dot := strings.IndexByte(name[slash+1:], '.'); dot >= 0 {
		name = name[:slash+1+dot]
	}
	return name
}

// Emit implements Emitter.Emit.
func (c ConsoleEmitter) Emit(depth int, level Level, _ time.Time, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	fmt.Fprintf(c.Writer, "[%s] (%s) -- %s\n", consoleLevel(level), targetOf(depth+1), msg)
}
