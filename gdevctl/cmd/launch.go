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

package cmd

import (
	"context"
	"flag"

	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/fencewait"
	"github.com/google/subcommands"
	"github.com/mohae/deepcopy"
)

// Launch implements subcommands.Command for the "launch" command.
type Launch struct {
	channel uint
	out     string
	repeat  int
	wait    bool
}

// Name implements subcommands.Command.Name.
func (*Launch) Name() string {
	return "launch"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Launch) Synopsis() string {
	return "encode kernel launches from a TOML descriptor"
}

// Usage implements subcommands.Command.Usage.
func (*Launch) Usage() string {
	return `launch [flags] <kernel.toml> - initialize a context and launch the kernel.

The descriptor names the code, parameters, constant banks, memory sizes and
geometry, e.g.:

  code_size = 0x100
  params = [0, 0, 0, 0, 0, 0, 0, 0, 42]
  grid = [4, 1, 1]
  block = [128, 1, 1]
  reg_count = 16

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Launch) SetFlags(f *flag.FlagSet) {
	f.UintVar(&l.channel, "channel", 0, "channel id of the context.")
	f.StringVar(&l.out, "out", "", "write the command stream to this file instead of the simulated ring.")
	f.IntVar(&l.repeat, "repeat", 1, "number of launches.")
	f.BoolVar(&l.wait, "wait", true, "fence every launch and wait for it. Ignored with --out.")
}

// Execute implements subcommands.Command.Execute.
func (l *Launch) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 || l.repeat < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	desc, err := loadKernelDesc(f.Arg(0))
	if err != nil {
		return util.Errorf("%v", err)
	}

	dev, err := attach(conf)
	if err != nil {
		return util.Errorf("attaching device: %v", err)
	}
	defer dev.Close()

	s, err := newSession(conf, dev, sessionOptions{channel: uint32(l.channel), outPath: l.out})
	if err != nil {
		return util.Errorf("creating context: %v", err)
	}
	defer s.Close()

	eng := s.engine()
	if err := eng.Init(s.ctx); err != nil {
		return util.Errorf("initializing context: %v", err)
	}
	base, err := desc.build(s.vas, uint64(conf.MPCount))
	if err != nil {
		return util.Errorf("building kernel: %v", err)
	}

	tracker := fencewait.NewTracker(s.ctx, fencewait.DefaultOptions())
	for i := 0; i < l.repeat; i++ {
		// Launch rewrites the parameters, so every launch gets its own copy
		// of the descriptor.
		k := deepcopy.Copy(base).(*compute.Kernel)
		if err := eng.Launch(s.ctx, k); err != nil {
			return util.Errorf("launch %d: %v", i, err)
		}
		if !l.wait || !s.simulated() {
			continue
		}
		seq, err := tracker.Arm(nvgpu.SubchCompute)
		if err != nil {
			return util.Errorf("launch %d: arming fence: %v", i, err)
		}
		if err := tracker.Wait(ctx, seq); err != nil {
			return util.Errorf("launch %d: %v", i, err)
		}
		util.Infof("Launch %d: %d threads, fence %d at %d", i, uint64(k.Threads())*uint64(k.Grid[0])*uint64(k.Grid[1])*uint64(k.Grid[2]), seq, eng.FenceTimestamp(s.ctx, seq))
	}
	util.Infof("%d launches, %d words submitted", l.repeat, s.ctx.Pushbuf.Submitted())
	s.logStats()
	return subcommands.ExitSuccess
}
