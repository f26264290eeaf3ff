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

// Package cli is the main entrypoint for gdevctl.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"gdev.dev/gdev/gdevctl/cmd"
	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/metric"
	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
)

// versionFlagName is the name of a flag that triggers printing the version.
const versionFlagName = "version"

// version is set at link time.
var version = "unknown"

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)
	showVersion := flag.Bool(versionFlagName, false, "show version and exit.")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "gdevctl version %s\n", version)
		os.Exit(0)
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)
	var errorLogger io.Writer
	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		errorLogger = f
	}
	util.ErrorLogger = errorLogger

	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	// Force the local time zone to load before the first log line.
	_ = time.Local.String()
	startTime := time.Now()

	var emitters log.MultiEmitter
	if errorLogger != nil {
		emitters = append(emitters, newEmitter(conf.LogFormat, errorLogger))
	}
	if conf.DebugLog != "" {
		f, err := log.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.PatternOpts{Command: subcommand, Timestamp: startTime})
		if err != nil {
			util.Fatalf("error opening debug log file in %q: %v", conf.DebugLog, err)
		}
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, f))
	}
	if conf.AlsoLogToStderr {
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, os.Stderr))
	}

	switch len(emitters) {
	case 0:
		// Stdout carries command output; discard logs if no log file is
		// given.
		log.SetTarget(newEmitter("text", io.Discard))
	case 1:
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	const delimString = `**************** gdev ****************`
	log.Infof(delimString)
	log.Infof("Version %s, %s, %s, %d CPUs, %s, PID %d, UID %d", version, runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid(), os.Getuid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	subcmdCode := subcommands.Execute(ctx, conf)
	stop()

	if conf.Metrics != "" {
		if err := writeMetrics(conf.Metrics); err != nil {
			util.Fatalf("error writing metrics to %q: %v", conf.Metrics, err)
		}
	}
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// gdevctl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Init), "")
	cb(new(cmd.Launch), "")
	cb(new(cmd.Copy), "")
	cb(new(cmd.Fence), "")
	cb(new(cmd.Bench), "")

	const debugGroup = "debug"
	cb(new(cmd.Dump), debugGroup)
	cb(new(cmd.Breakpoints), debugGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	e, err := log.EmitterForFormat(format, &log.Writer{Next: logFile})
	if err != nil {
		util.Fatalf("%v", err)
	}
	return e
}

// writeMetrics writes the metric registry to path, "-" being stdout.
func writeMetrics(path string) error {
	if path == "-" {
		return metric.WriteText(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metric.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
