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

package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
)

func TestCommands(t *testing.T) {
	groups := make(map[string][]string)
	forEachCmd(func(c subcommands.Command, group string) {
		groups[group] = append(groups[group], c.Name())
	})
	for _, names := range groups {
		sort.Strings(names)
	}
	want := map[string][]string{
		"":      {"bench", "copy", "fence", "flags", "help", "init", "launch"},
		"debug": {"breakpoints", "dump"},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics")
	if err := writeMetrics(path); err != nil {
		t.Fatalf("writeMetrics: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "gdev_pushbuf_submits_total") {
		t.Errorf("metrics do not include the submit counter:\n%s", data)
	}
}
