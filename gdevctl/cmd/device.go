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
	"bufio"
	"fmt"
	"os"

	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/cleanup"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/nvc0"
	"gdev.dev/gdev/pkg/gpfifo"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/mmio"
	"gdev.dev/gdev/pkg/pushbuf"
	"gdev.dev/gdev/pkg/vaspace"
)

// vaBase is the start of every context's device address space. It keeps
// address zero and the low 4 GiB unused, so high address words are never
// zero.
const vaBase = 0x100000000

// staticQuerier answers device queries from the configuration.
type staticQuerier struct {
	mpCount uint64
}

// Query implements compute.Querier.Query.
func (q staticQuerier) Query(kind compute.QueryKind) (uint64, error) {
	switch kind {
	case compute.QueryMPCount:
		return q.mpCount, nil
	default:
		return 0, fmt.Errorf("unknown query %d", kind)
	}
}

// openRegisters returns the register file selected by conf and a function
// releasing it.
func openRegisters(conf *config.Config) (compute.RegisterFile, func(), error) {
	if conf.BAR0 != "" {
		bar, err := mmio.OpenBAR(conf.BAR0)
		if err != nil {
			return nil, nil, err
		}
		cards := make(mmio.Cards, conf.Card+1)
		cards[conf.Card] = bar
		return cards, func() { bar.Close() }, nil
	}
	topo, err := config.ParseTopology(conf.Topology)
	if err != nil {
		return nil, nil, err
	}
	return newSparseRegisters(conf.Card, topo), func() {}, nil
}

// newSparseRegisters returns in-memory registers reporting topo.
func newSparseRegisters(card int, topo []uint32) *mmio.Sparse {
	regs := mmio.NewSparse()
	regs.Set(card, nvgpu.NV_PGRAPH_FECS_GPC_COUNT, uint32(len(topo)))
	for gpc, tpcs := range topo {
		regs.Set(card, nvgpu.GPCRegister(uint32(gpc), nvgpu.GPCTPCCount), tpcs)
	}
	return regs
}

// device is an attached device with its register file.
type device struct {
	*compute.Device
	release func()
}

// attach opens the registers and attaches the device described by conf.
func attach(conf *config.Config) (*device, error) {
	regs, release, err := openRegisters(conf)
	if err != nil {
		return nil, fmt.Errorf("opening registers: %w", err)
	}
	cu := cleanup.Make(release)
	defer cu.Clean()

	engCfg := nvc0.DefaultConfig()
	engCfg.UsePCOPY1 = conf.PCOPY1
	engCfg.Handler.MaxAttempts = conf.HandlerAttempts
	dev, err := compute.Attach(compute.DeviceOptions{
		Chipset:          uint32(conf.Chipset),
		Index:            conf.Card,
		Regs:             regs,
		Query:            staticQuerier{mpCount: uint64(conf.MPCount)},
		Privileged:       conf.Privileged,
		ExplicitCopyBind: conf.ExplicitCopyBind,
		CopyEngines:      conf.CopyEngines,
		EngineConfig:     engCfg,
	})
	if err != nil {
		return nil, err
	}
	cu.Release()
	return &device{Device: dev, release: release}, nil
}

// Close releases the register file.
func (d *device) Close() {
	d.release()
}

// session is one context on a device with its own address space and
// transport.
type session struct {
	dev *device
	vas *vaspace.Space
	ctx *compute.Context

	// ring is set when commands go to a simulated ring.
	ring *gpfifo.Ring

	// sim drains ring, if set.
	sim *simulator

	// out is set when commands go to a file.
	out *bufio.Writer
	f   *os.File
}

// sessionOptions configures newSession.
type sessionOptions struct {
	channel uint32

	// outPath, if set, names a file receiving the command stream instead
	// of the simulated ring.
	outPath string
}

// newSession creates an address space, a transport and a context on dev.
func newSession(conf *config.Config, dev *device, opts sessionOptions) (*session, error) {
	vas, err := vaspace.New(vaBase, conf.VASize)
	if err != nil {
		return nil, err
	}
	s := &session{dev: dev, vas: vas}
	cu := cleanup.Make(vas.Release)
	defer cu.Clean()

	var t pushbuf.Transport
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return nil, err
		}
		cu.Add(func() { f.Close() })
		s.f = f
		s.out = bufio.NewWriter(f)
		t = &pushbuf.WriterTransport{W: s.out}
	} else {
		s.sim = newSimulator(vas)
		ring, err := gpfifo.New(conf.RingSize, func(uint32) { s.sim.drain(s.ring) })
		if err != nil {
			return nil, err
		}
		s.ring = ring
		t = ring
	}

	ctx, err := compute.NewContext(dev.Device, vas, t, compute.ContextOptions{
		Channel: opts.channel,
		Debug:   conf.GPUDebug,
	})
	if err != nil {
		return nil, err
	}
	s.ctx = ctx
	cu.Release()
	return s, nil
}

// Close frees the context and the address space and closes the output
// file, if any.
func (s *session) Close() error {
	s.ctx.Close()
	s.vas.Release()
	if s.f == nil {
		return nil
	}
	if err := s.out.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// engine returns the context's engine.
func (s *session) engine() compute.Engine {
	return s.ctx.Engine()
}

// simulated returns true if fences will be completed.
func (s *session) simulated() bool {
	return s.sim != nil
}

// logStats logs the amount of work submitted.
func (s *session) logStats() {
	log.Infof("Channel %d: %d words submitted, %#x bytes of address space used", s.ctx.Channel, s.ctx.Pushbuf.Submitted(), s.vas.Used())
}
