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

// Package config provides basic infrastructure to set configuration settings
// for gdevctl. Each setting that can be changed from the command line must
// have a field in Config with a matching `flag:"name"` tag, and be
// registered in RegisterFlags.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/log"
)

// Config holds configuration that is not part of a single command.
type Config struct {
	// ConfigFile is a TOML file providing defaults for the other flags.
	// Flags given on the command line take precedence.
	ConfigFile string `flag:"config"`

	// Chipset is the chipset id of the device, e.g. 0xc0 for GF100.
	Chipset uint `flag:"chipset"`

	// Card is the card index passed to the register file.
	Card int `flag:"card"`

	// MPCount is the multiprocessor count reported by the device query.
	MPCount uint `flag:"mp-count"`

	// Privileged is set when gdevctl controls kernel-privileged hardware
	// state, which allows binding the copy engines.
	Privileged bool `flag:"privileged"`

	// ExplicitCopyBind forces the copy engines to be bound at init.
	ExplicitCopyBind bool `flag:"explicit-copy-bind"`

	// CopyEngines is the number of asynchronous copy engines, 0 to 2.
	CopyEngines int `flag:"copy-engines"`

	// PCOPY1 enables the second copy engine for fences.
	PCOPY1 bool `flag:"pcopy1"`

	// GPUDebug enables breakpoint arming and trap handler installation.
	GPUDebug bool `flag:"gpu-debug"`

	// HandlerAttempts bounds trap handler allocation attempts.
	HandlerAttempts int `flag:"handler-attempts"`

	// BAR0 is the PCI resource file of the register aperture. When empty,
	// register accesses go to an in-memory register file.
	BAR0 string `flag:"bar0"`

	// Topology is the TPC count of every GPC, comma separated, reported by
	// the in-memory register file. It is ignored when BAR0 is set.
	Topology string `flag:"topology"`

	// RingSize is the command ring size in words. It must be a power of 2.
	RingSize int `flag:"ring-size"`

	// VASize is the size of each context's device address space in bytes.
	VASize uint64 `flag:"va-size"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// Metrics is the file the metric registry is written to on exit. "-"
	// is stdout.
	Metrics string `flag:"metrics"`
}

func (c *Config) validate() error {
	if _, ok := compute.GenerationOf(uint32(c.Chipset)); !ok {
		return fmt.Errorf("chipset %#x is not supported", c.Chipset)
	}
	if c.CopyEngines < 0 || c.CopyEngines > 2 {
		return fmt.Errorf("copy-engines must be between 0 and 2, got %d", c.CopyEngines)
	}
	if c.PCOPY1 && c.CopyEngines < 2 {
		return fmt.Errorf("pcopy1 requires 2 copy engines, got %d", c.CopyEngines)
	}
	if c.MPCount == 0 {
		return fmt.Errorf("mp-count must be positive")
	}
	if c.HandlerAttempts <= 0 {
		return fmt.Errorf("handler-attempts must be positive, got %d", c.HandlerAttempts)
	}
	if c.RingSize <= 0 || c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("ring-size must be a power of 2, got %d", c.RingSize)
	}
	if c.VASize == 0 || c.VASize%0x1000 != 0 {
		return fmt.Errorf("va-size must be a positive multiple of 4096, got %#x", c.VASize)
	}
	if _, err := ParseTopology(c.Topology); err != nil {
		return err
	}
	for _, f := range []string{c.LogFormat, c.DebugLogFormat} {
		switch f {
		case "text", "json", "json-k8s":
		default:
			return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", f)
		}
	}
	return nil
}

// ParseTopology parses a comma separated list of TPC counts, one per GPC.
func ParseTopology(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var topo []uint32
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid topology %q: %v", s, err)
		}
		topo = append(topo, uint32(n))
	}
	return topo, nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}
