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
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/fencewait"
	"gdev.dev/gdev/pkg/log"
	"github.com/google/subcommands"
	"github.com/mohae/deepcopy"
	"golang.org/x/sync/errgroup"
)

// benchKernel is launched when no descriptor is given.
var benchKernel = kernelDesc{
	CodeSize: 0x100,
	Params:   make([]uint32, nvgpu.ParamCallingConventionWords+2),
	Cmem:     []uint32{0x200},
	Grid:     [3]uint32{64, 1, 1},
	Block:    [3]uint32{256, 1, 1},
	RegCount: 16,
	BarCount: 1,
	LmemSize: 0x10,
}

// Bench implements subcommands.Command for the "bench" command.
type Bench struct {
	contexts int
	launches int
	copySize uint64
	kernel   string
}

// Name implements subcommands.Command.Name.
func (*Bench) Name() string {
	return "bench"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Bench) Synopsis() string {
	return "encode launches and copies on several contexts concurrently"
}

// Usage implements subcommands.Command.Usage.
func (*Bench) Usage() string {
	return `bench [flags] - run --contexts contexts in parallel, each with its own address
space and simulated ring, and report the encoding rate.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Bench) SetFlags(f *flag.FlagSet) {
	f.IntVar(&b.contexts, "contexts", 4, "number of concurrent contexts.")
	f.IntVar(&b.launches, "launches", 1000, "launches per context.")
	f.Uint64Var(&b.copySize, "copy-size", 0x4000, "bytes copied after every launch, 0 for none.")
	f.StringVar(&b.kernel, "kernel", "", "kernel descriptor to launch instead of a built-in one.")
}

// benchResult is the work done by one context.
type benchResult struct {
	words    uint64
	launches int
	fences   int
}

// Execute implements subcommands.Command.Execute.
func (b *Bench) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || b.contexts < 1 || b.launches < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	desc := benchKernel
	if b.kernel != "" {
		d, err := loadKernelDesc(b.kernel)
		if err != nil {
			return util.Errorf("%v", err)
		}
		desc = *d
	}

	dev, err := attach(conf)
	if err != nil {
		return util.Errorf("attaching device: %v", err)
	}
	defer dev.Close()

	start := time.Now()
	results := make([]benchResult, b.contexts)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.contexts; i++ {
		i := i
		g.Go(func() error {
			r, err := b.run(gctx, conf, dev, uint32(i), &desc)
			if err != nil {
				return fmt.Errorf("context %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return util.Errorf("%v", err)
	}
	elapsed := time.Since(start)

	var total benchResult
	for _, r := range results {
		total.words += r.words
		total.launches += r.launches
		total.fences += r.fences
	}
	util.Infof("%d contexts: %d launches, %d fences, %d words in %v (%.0f words/s)",
		b.contexts, total.launches, total.fences, total.words, elapsed, float64(total.words)/elapsed.Seconds())
	return subcommands.ExitSuccess
}

// run drives one context. The device is shared; everything else is
// private to the context.
func (b *Bench) run(ctx context.Context, conf *config.Config, dev *device, channel uint32, desc *kernelDesc) (benchResult, error) {
	s, err := newSession(conf, dev, sessionOptions{channel: channel})
	if err != nil {
		return benchResult{}, err
	}
	defer s.Close()

	eng := s.engine()
	if err := eng.Init(s.ctx); err != nil {
		return benchResult{}, err
	}
	base, err := desc.build(s.vas, uint64(conf.MPCount))
	if err != nil {
		return benchResult{}, err
	}
	var src, dst *compute.Block
	if b.copySize != 0 {
		if src, err = s.vas.Alloc(b.copySize, compute.PlacementHost); err != nil {
			return benchResult{}, err
		}
		if dst, err = s.vas.Alloc(b.copySize, compute.PlacementDevice); err != nil {
			return benchResult{}, err
		}
	}

	var r benchResult
	tracker := fencewait.NewTracker(s.ctx, fencewait.DefaultOptions())
	for i := 0; i < b.launches; i++ {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		k := deepcopy.Copy(base).(*compute.Kernel)
		k.GridID = uint32(i)
		if err := eng.Launch(s.ctx, k); err != nil {
			return r, err
		}
		r.launches++
		subch := nvgpu.SubchCompute
		if src != nil {
			if err := eng.CopyNow(s.ctx, dst.Addr, src.Addr, b.copySize); err != nil {
				return r, err
			}
			subch = nvgpu.SubchM2MF
		}
		seq, err := tracker.Arm(subch)
		if err != nil {
			return r, err
		}
		if err := tracker.Wait(ctx, seq); err != nil {
			return r, err
		}
		r.fences++
	}
	r.words = s.ctx.Pushbuf.Submitted()
	log.Debugf("bench: channel %d: %d packets executed, %d copies, %d faults", channel, s.sim.packets, s.sim.copies, s.sim.faults)
	if s.sim.faults != 0 {
		return r, fmt.Errorf("%d faults in the command stream", s.sim.faults)
	}
	return r, nil
}
