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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "TOML file with default flag values, keyed by flag name. Flags given on the command line take precedence.")

	// Device flags.
	flagSet.Uint("chipset", 0xc0, "chipset id of the device.")
	flagSet.Int("card", 0, "card index used for register access.")
	flagSet.Uint("mp-count", 16, "multiprocessor count reported by the device.")
	flagSet.Bool("privileged", false, "control kernel-privileged hardware state.")
	flagSet.Bool("explicit-copy-bind", false, "bind the copy engines at init.")
	flagSet.Int("copy-engines", 1, "number of asynchronous copy engines, 0 to 2.")
	flagSet.Bool("pcopy1", false, "use the second copy engine for fences.")
	flagSet.Bool("gpu-debug", false, "arm breakpoints at init and install the trap handler at launch.")
	flagSet.Int("handler-attempts", 100, "maximum trap handler allocation attempts.")
	flagSet.String("bar0", "", "PCI resource file of the register aperture, e.g. /sys/bus/pci/devices/0000:01:00.0/resource0. Empty uses in-memory registers.")
	flagSet.String("topology", "1", "comma-separated TPC count of every GPC reported by in-memory registers.")

	// Command submission flags.
	flagSet.Int("ring-size", 1<<16, "command ring size in words.")
	flagSet.Uint64("va-size", 1<<30, "size of each context's device address space.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stdout.")
	flagSet.String("log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for logs. If it ends with '/', log files are created inside the directory with default names. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.String("debug-log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr.")
	flagSet.String("metrics", "", "file path where metrics are written on exit, '-' for stdout.")
}

// getFlag returns the typed value of fl.
func getFlag(fl *flag.Flag) any {
	return fl.Value.(flag.Getter).Get()
}

// loadFile sets every flag named in the TOML file at path that was not set
// on the command line.
func loadFile(flagSet *flag.FlagSet, path string) error {
	var values map[string]any
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		explicit[fl.Name] = true
	})
	for name, v := range values {
		fl := flagSet.Lookup(name)
		if fl == nil || name == "config" {
			return fmt.Errorf("config file %q: unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := fl.Value.Set(fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config file %q: flag %s=%v: %w", path, name, v, err)
		}
	}
	return nil
}

// NewFromFlags creates a new Config with values coming from command line
// flags, and from the file named by --config for flags not given.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if fl := flagSet.Lookup("config"); fl != nil && fl.Value.String() != "" {
		if err := loadFile(flagSet, fl.Value.String()); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		obj.Field(i).Set(reflect.ValueOf(getFlag(fl)))
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == getVal(reflect.ValueOf(getFlag(fl))) {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
