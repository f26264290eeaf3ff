// Copyright 2025 The gVisor Authors.
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

// pid is used for the threadid component of the header. glog pads it to
// seven columns.
var pid = padLeft(strconv.Itoa(os.Getpid()), 7)

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// levelChar maps a level to its single-character glog tag.
func levelChar(level Level) byte {
	switch level {
	case Debug:
		return 'D'
	case Info:
		return 'I'
	default:
		return 'W'
	}
}

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var b strings.Builder
	b.Grow(64 + len(format))

	b.WriteByte(levelChar(level))
	b.WriteString(timestamp.Format("0102 15:04:05.000000"))
	b.WriteByte(' ')
	b.WriteString(pid)
	b.WriteByte(' ')

	file, line := "x", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(f, '/'); slash >= 0 {
			f = f[slash+1:]
		}
		file, line = f, l
	}
	b.WriteString(file)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(line))
	b.WriteString("] ")

	// The format string is copied as-is; arguments are applied by the
	// underlying emitter.
	b.WriteString(format)
	b.WriteByte('\n')

	g.Emitter.Emit(depth+1, level, timestamp, b.String(), args...)
}
