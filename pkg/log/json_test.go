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
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		level Level
		name  string
		num   string
	}{
		{Warning, `"warning"`, "0"},
		{Info, `"info"`, "1"},
		{Debug, `"debug"`, "2"},
	} {
		b, err := json.Marshal(tc.level)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", tc.level, err)
		}
		if string(b) != tc.name {
			t.Errorf("Marshal(%v) = %s, want %s", tc.level, b, tc.name)
		}
		for _, in := range []string{tc.name, tc.num} {
			var got Level
			if err := json.Unmarshal([]byte(in), &got); err != nil {
				t.Errorf("Unmarshal(%s) failed: %v", in, err)
			} else if got != tc.level {
				t.Errorf("Unmarshal(%s) = %v, want %v", in, got, tc.level)
			}
		}
	}
	var l Level
	if err := json.Unmarshal([]byte(`"verbose"`), &l); err == nil {
		t.Errorf("Unmarshal of unknown level succeeded")
	}
	if _, err := json.Marshal(Level(7)); err == nil {
		t.Errorf("Marshal of unknown level succeeded")
	}
}

// emitted is the union of the JSON and k8s JSON line fields.
type emitted struct {
	Msg   string    `json:"msg"`
	Log   string    `json:"log"`
	Level Level     `json:"level"`
	Time  time.Time `json:"time"`
}

func TestJSONEmitters(t *testing.T) {
	for _, format := range []string{"json", "json-k8s"} {
		t.Run(format, func(t *testing.T) {
			tw := &testWriter{}
			e, err := EmitterForFormat(format, &Writer{Next: tw})
			if err != nil {
				t.Fatalf("EmitterForFormat(%q) failed: %v", format, err)
			}
			l := &BasicLogger{Level: Debug, Emitter: e}
			l.Debugf("fence %d reached", 7)

			out := strings.Join(tw.lines, "")
			line, ok := strings.CutSuffix(out, "\n")
			if !ok || strings.Contains(line, "\n") {
				t.Fatalf("output %q is not a single line", out)
			}
			var got emitted
			if err := json.Unmarshal([]byte(line), &got); err != nil {
				t.Fatalf("line %q is not JSON: %v", line, err)
			}
			msg, other := got.Msg, got.Log
			if format == "json-k8s" {
				msg, other = got.Log, got.Msg
			}
			if other != "" {
				t.Errorf("line %q carries both msg and log", line)
			}
			if !strings.HasPrefix(msg, "json_test.go:") || !strings.HasSuffix(msg, "] fence 7 reached") {
				t.Errorf("message = %q, want json_test.go:<line>] fence 7 reached", msg)
			}
			if diff := cmp.Diff(Debug, got.Level); diff != "" {
				t.Errorf("level mismatch (-want +got):\n%s", diff)
			}
			if got.Time.IsZero() {
				t.Errorf("line %q has no time", line)
			}
		})
	}
}

func TestEmitterForFormat(t *testing.T) {
	w := &Writer{Next: &testWriter{}}
	for _, format := range []string{"", "text"} {
		e, err := EmitterForFormat(format, w)
		if err != nil {
			t.Errorf("EmitterForFormat(%q) failed: %v", format, err)
		} else if _, ok := e.(GoogleEmitter); !ok {
			t.Errorf("EmitterForFormat(%q) = %T, want GoogleEmitter", format, e)
		}
	}
	if _, err := EmitterForFormat("xml", w); err == nil {
		t.Errorf("EmitterForFormat(xml) succeeded")
	}
}
