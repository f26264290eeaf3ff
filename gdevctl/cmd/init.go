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

// Package cmd holds implementations of the gdevctl commands.
package cmd

import (
	"context"
	"flag"

	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"github.com/google/subcommands"
)

// Init implements subcommands.Command for the "init" command.
type Init struct {
	channel uint
	out     string
}

// Name implements subcommands.Command.Name.
func (*Init) Name() string {
	return "init"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Init) Synopsis() string {
	return "initialize a context and report the engines bound"
}

// Usage implements subcommands.Command.Usage.
func (*Init) Usage() string {
	return `init [flags] - attach the device, create a context and encode its initialization.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (i *Init) SetFlags(f *flag.FlagSet) {
	f.UintVar(&i.channel, "channel", 0, "channel id of the context.")
	f.StringVar(&i.out, "out", "", "write the command stream to this file instead of the simulated ring.")
}

// Execute implements subcommands.Command.Execute.
func (i *Init) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	dev, err := attach(conf)
	if err != nil {
		return util.Errorf("attaching device: %v", err)
	}
	defer dev.Close()

	s, err := newSession(conf, dev, sessionOptions{channel: uint32(i.channel), outPath: i.out})
	if err != nil {
		return util.Errorf("creating context: %v", err)
	}
	defer s.Close()

	if err := s.engine().Init(s.ctx); err != nil {
		return util.Errorf("initializing context: %v", err)
	}
	util.Infof("Device: chipset %#x, generation %s", dev.Chipset, dev.Generation)
	util.Infof("Fence buffer at %#x, notifier at %#x", s.ctx.Fence.Addr, s.ctx.Notify.Addr)
	for subch, class := range s.ctx.Bound {
		if class != 0 {
			util.Infof("Subchannel %d (%s): class %#x", subch, nvgpu.Subchannel(subch), class)
		}
	}
	util.Infof("%d words submitted", s.ctx.Pushbuf.Submitted())
	s.logStats()
	return subcommands.ExitSuccess
}
