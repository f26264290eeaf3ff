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

// Package util groups helpers used by gdevctl commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gdev.dev/gdev/pkg/log"
	"github.com/google/subcommands"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the operator that invoked gdevctl.
var ErrorLogger io.Writer

// Infof writes message to log and stdout.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Errorf logs error to the error log (--log), to stderr, and debug logs. It
// returns subcommands.ExitFailure for convenience with subcommand.Execute()
// methods:
//
//	return Errorf("Danger! Danger!")
func Errorf(format string, args ...any) subcommands.ExitStatus {
	// gdevctl may run with stderr discarded, so log a serious-looking
	// warning in addition to writing to stderr.
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)

	errMsg := fmt.Sprintf(format, args...)
	if ErrorLogger != nil {
		writeError(errMsg)
	}
	return subcommands.ExitFailure
}

// writeError writes a JSON line to ErrorLogger.
func writeError(msg string) {
	j := struct {
		Msg   string    `json:"msg"`
		Level string    `json:"level"`
		Time  time.Time `json:"time"`
	}{
		Msg:   msg,
		Level: "error",
		Time:  time.Now(),
	}
	b, err := json.Marshal(j)
	if err != nil {
		panic(err)
	}
	_, _ = ErrorLogger.Write(append(b, '\n'))
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	// Return an error that is unlikely to be used by the application.
	os.Exit(128)
}
