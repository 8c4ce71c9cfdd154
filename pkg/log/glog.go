// Copyright 2018 Google LLC
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
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// glogStamp is the "mmdd hh:mm:ss.uuuuuu" part of a glog header.
const glogStamp = "0102 15:04:05.000000"

// pid stands in for the thread id of a glog header.
var pid = strconv.Itoa(os.Getpid())

func glogLevel(level Level) byte {
	switch level {
	case Warning:
		return 'W'
	case Info:
		return 'I'
	case Debug:
		return 'D'
	default:
		return '?'
	}
}

// callerOf returns the file:line of the frame depth levels above its caller,
// with the directory trimmed.
func callerOf(depth int) string {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "x:0"
	}
	if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
		file = file[slash+1:]
	}
	return file + ":" + strconv.Itoa(line)
}

// Emit emits the message, google-style:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// The message is formatted here, so the underlying emitter receives a
// single verbatim line.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	b := make([]byte, 0, 64+len(format))
	b = append(b, glogLevel(level))
	b = timestamp.AppendFormat(b, glogStamp)
	b = fmt.Appendf(b, " %7s %s] ", pid, callerOf(depth+1))
	b = fmt.Appendf(b, format, args...)
	b = append(b, '\n')
	g.Emitter.Emit(depth+1, level, timestamp, "%s", b)
}
