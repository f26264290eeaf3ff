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
	"bytes"
	"context"
	"flag"
	"fmt"

	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/fencewait"
	"github.com/google/subcommands"
)

// Copy implements subcommands.Command for the "copy" command.
type Copy struct {
	size  uint64
	async bool
	out   string
}

// Name implements subcommands.Command.Name.
func (*Copy) Name() string {
	return "copy"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Copy) Synopsis() string {
	return "copy a host buffer to device memory and check it"
}

// Usage implements subcommands.Command.Usage.
func (*Copy) Usage() string {
	return `copy [flags] - copy --size bytes from host to device memory, fence the copy
and compare both buffers when the ring is simulated.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Copy) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.size, "size", 0x10000, "number of bytes to copy.")
	f.BoolVar(&c.async, "async", false, "use the asynchronous copy engine instead of M2MF.")
	f.StringVar(&c.out, "out", "", "write the command stream to this file instead of the simulated ring.")
}

// Execute implements subcommands.Command.Execute.
func (c *Copy) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
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

	s, err := newSession(conf, dev, sessionOptions{outPath: c.out})
	if err != nil {
		return util.Errorf("creating context: %v", err)
	}
	defer s.Close()

	if err := s.engine().Init(s.ctx); err != nil {
		return util.Errorf("initializing context: %v", err)
	}
	if err := runCopy(ctx, s, c.size, c.async); err != nil {
		return util.Errorf("%v", err)
	}
	s.logStats()
	return subcommands.ExitSuccess
}

// runCopy copies size bytes of a pattern from a host block to a device
// block and, if s is simulated, checks the result.
func runCopy(ctx context.Context, s *session, size uint64, async bool) error {
	if size == 0 {
		return fmt.Errorf("copy size must be positive")
	}
	src, err := s.vas.Alloc(size, compute.PlacementHost)
	if err != nil {
		return fmt.Errorf("allocating source: %w", err)
	}
	dst, err := s.vas.Alloc(size, compute.PlacementDevice)
	if err != nil {
		return fmt.Errorf("allocating destination: %w", err)
	}
	for i := range src.Map {
		src.Map[i] = byte(i*7 + 3)
	}

	eng := s.engine()
	subch := nvgpu.SubchM2MF
	if async {
		subch = nvgpu.SubchPCOPY0
		err = eng.CopyAsync(s.ctx, dst.Addr, src.Addr, size)
	} else {
		err = eng.CopyNow(s.ctx, dst.Addr, src.Addr, size)
	}
	if err != nil {
		return fmt.Errorf("copying %#x bytes on %s: %w", size, subch, err)
	}
	if !s.simulated() {
		return nil
	}

	tracker := fencewait.NewTracker(s.ctx, fencewait.DefaultOptions())
	seq, err := tracker.Arm(subch)
	if err != nil {
		return fmt.Errorf("arming fence on %s: %w", subch, err)
	}
	if err := tracker.Wait(ctx, seq); err != nil {
		return err
	}
	if !bytes.Equal(src.Map, dst.Map) {
		return fmt.Errorf("destination differs from source after copying %#x bytes on %s", size, subch)
	}
	util.Infof("Copied %#x bytes on %s: %#x -> %#x", size, subch, src.Addr, dst.Addr)
	return nil
}
