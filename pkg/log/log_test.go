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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevelFiltering(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)
	l.SetLevel(Debug)
	l.Debugf("shown %d", 4)

	want := []string{"shown 2", "\n", "shown 3", "\n", "shown 4", "\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("logged lines mismatch (-want +got):\n%s", diff)
	}
}

func TestGoogleEmitterHeader(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2025, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "value=%d", 42)

	if len(tw.lines) == 0 {
		t.Fatalf("nothing was emitted")
	}
	got := tw.lines[0]
	if !strings.HasPrefix(got, "W0304 05:06:07.000008 ") {
		t.Errorf("header = %q, want prefix %q", got, "W0304 05:06:07.000008 ")
	}
	if !strings.Contains(got, "log_test.go:") {
		t.Errorf("line %q does not name the calling file", got)
	}
	if !strings.HasSuffix(got, "] value=42\n") {
		t.Errorf("line %q does not end with the formatted message", got)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Warning, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)

	// Debug statements are filtered before the limiter is consulted.
	rl.Debugf("debug")
	rl.Warningf("first")
	rl.Warningf("second")

	want := []string{"first", "\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("rate limited lines mismatch (-want +got):\n%s", diff)
	}
}

func TestPatternOpts(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	opts := PatternOpts{Command: "launch", Timestamp: ts}
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{pattern: "/tmp/gdev.log", want: "/tmp/gdev.log"},
		{pattern: "/tmp/%COMMAND%.log", want: "/tmp/launch.log"},
		{pattern: "/var/log/gdev/", want: "/var/log/gdev/gdev.20250102-030405.000000.launch.log"},
	} {
		if got := opts.Build(tc.pattern); got != tc.want {
			t.Errorf("Build(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestEmitterForFormatAll(t *testing.T) {
	w := &Writer{Next: &testWriter{}}
	for _, format := range []string{"", "text", "json", "json-k8s"} {
		if _, err := EmitterForFormat(format, w); err != nil {
			t.Errorf("EmitterForFormat(%q) failed: %v", format, err)
		}
	}
	if _, err := EmitterForFormat("xml", w); err == nil {
		t.Errorf("EmitterForFormat(%q) succeeded, want error", "xml")
	}
}
