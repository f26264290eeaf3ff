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
	"fmt"
	"time"

	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/fencewait"
	"github.com/google/subcommands"
)

// parseSubchannel maps an engine name to its subchannel.
func parseSubchannel(name string) (nvgpu.Subchannel, error) {
	for _, s := range []nvgpu.Subchannel{nvgpu.SubchCompute, nvgpu.SubchM2MF, nvgpu.SubchPCOPY0, nvgpu.SubchPCOPY1} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown engine %q, must be 'compute', 'm2mf', 'pcopy0' or 'pcopy1'", name)
}

// Fence implements subcommands.Command for the "fence" command.
type Fence struct {
	engine  string
	count   int
	timeout time.Duration
	barrier bool
	notify  bool
}

// Name implements subcommands.Command.Name.
func (*Fence) Name() string {
	return "fence"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Fence) Synopsis() string {
	return "write fences on an engine and wait for them"
}

// Usage implements subcommands.Command.Usage.
func (*Fence) Usage() string {
	return `fence [flags] - arm --count fences on --engine and wait for each.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (fe *Fence) SetFlags(f *flag.FlagSet) {
	f.StringVar(&fe.engine, "engine", "compute", "engine writing the fences: compute, m2mf, pcopy0 or pcopy1.")
	f.IntVar(&fe.count, "count", 1, "number of fences.")
	f.DurationVar(&fe.timeout, "timeout", 10*time.Second, "timeout of each wait.")
	f.BoolVar(&fe.barrier, "barrier", false, "encode a memory barrier before every fence.")
	f.BoolVar(&fe.notify, "notify", false, "encode a notifier interrupt after every fence.")
}

// Execute implements subcommands.Command.Execute.
func (fe *Fence) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || fe.count < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	subch, err := parseSubchannel(fe.engine)
	if err != nil {
		return util.Errorf("%v", err)
	}

	dev, err := attach(conf)
	if err != nil {
		return util.Errorf("attaching device: %v", err)
	}
	defer dev.Close()

	s, err := newSession(conf, dev, sessionOptions{})
	if err != nil {
		return util.Errorf("creating context: %v", err)
	}
	defer s.Close()

	eng := s.engine()
	if err := eng.Init(s.ctx); err != nil {
		return util.Errorf("initializing context: %v", err)
	}

	opts := fencewait.DefaultOptions()
	opts.Timeout = fe.timeout
	tracker := fencewait.NewTracker(s.ctx, opts)
	for i := 0; i < fe.count; i++ {
		if fe.barrier {
			if err := eng.MemoryBarrier(s.ctx); err != nil {
				return util.Errorf("memory barrier: %v", err)
			}
		}
		seq, err := tracker.Arm(subch)
		if err != nil {
			return util.Errorf("arming fence on %s: %v", subch, err)
		}
		if fe.notify {
			if err := eng.NotifyInterrupt(s.ctx); err != nil {
				return util.Errorf("notify: %v", err)
			}
		}
		if err := tracker.Wait(ctx, seq); err != nil {
			return util.Errorf("waiting for fence %d: %v", seq, err)
		}
		util.Infof("Fence %d (slot %d) on %s reached at %d", seq, nvgpu.FenceSlot(seq), subch, eng.FenceTimestamp(s.ctx, seq))
	}
	s.logStats()
	return subcommands.ExitSuccess
}
