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

// Package computetest provides fakes for testing compute engines.
package computetest

import (
	"fmt"
	"testing"

	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/mmio"
	"gdev.dev/gdev/pkg/pushbuf"
)

// AddressSpace is a scripted compute.AddressSpace. Blocks are handed out at
// the addresses in Script, in order; once Script is exhausted, blocks are
// placed sequentially from Next. Every block gets a host mapping.
type AddressSpace struct {
	// Script holds the addresses of the next allocations.
	Script []uint64

	// Next is the address of the next unscripted allocation.
	Next uint64

	// FailAt, if positive, makes the FailAt'th allocation (1-based) fail.
	FailAt int

	// Allocs counts allocations, successful or not.
	Allocs int

	// Live holds blocks that were allocated and not freed.
	Live map[*compute.Block]struct{}

	// Freed holds freed blocks in order.
	Freed []*compute.Block
}

// NewAddressSpace returns an AddressSpace placing unscripted blocks from
// base.
func NewAddressSpace(base uint64, script ...uint64) *AddressSpace {
	return &AddressSpace{
		Script: script,
		Next:   base,
		Live:   make(map[*compute.Block]struct{}),
	}
}

// Alloc implements compute.AddressSpace.Alloc.
func (as *AddressSpace) Alloc(size uint64, p compute.Placement) (*compute.Block, error) {
	as.Allocs++
	if as.FailAt > 0 && as.Allocs == as.FailAt {
		return nil, fmt.Errorf("allocation %d: %w", as.Allocs, compute.ErrOutOfMemory)
	}
	var addr uint64
	if len(as.Script) > 0 {
		addr, as.Script = as.Script[0], as.Script[1:]
	} else {
		addr = as.Next
		as.Next += (size + 0xfff) &^ 0xfff
	}
	b := &compute.Block{
		Addr:      addr,
		Size:      size,
		Placement: p,
		Map:       make([]byte, size),
	}
	as.Live[b] = struct{}{}
	return b, nil
}

// Free implements compute.AddressSpace.Free.
func (as *AddressSpace) Free(b *compute.Block) {
	if _, ok := as.Live[b]; !ok {
		panic(fmt.Sprintf("free of unknown block at %#x", b.Addr))
	}
	delete(as.Live, b)
	as.Freed = append(as.Freed, b)
}

// Querier is a fixed compute.Querier.
type Querier struct {
	MPCount uint64
	Err     error
}

// Query implements compute.Querier.Query.
func (q Querier) Query(kind compute.QueryKind) (uint64, error) {
	if q.Err != nil {
		return 0, q.Err
	}
	switch kind {
	case compute.QueryMPCount:
		return q.MPCount, nil
	default:
		return 0, fmt.Errorf("unknown query %d", kind)
	}
}

// Topology describes the clusters reported by a fake register file: one
// entry per GPC holding its TPC count.
type Topology []uint32

// NewRegisters returns a register file reporting topo on card index.
func NewRegisters(index int, topo Topology) *mmio.Sparse {
	regs := mmio.NewSparse()
	regs.Set(index, gpcCount, uint32(len(topo)))
	for gpc, tpcs := range topo {
		regs.Set(index, tpcCount(uint32(gpc)), tpcs)
	}
	return regs
}

// Harness is a device and context over fakes.
type Harness struct {
	Device *compute.Device
	VAS    *AddressSpace
	Regs   *mmio.Sparse
	Ring   *pushbuf.Recorder
	Ctx    *compute.Context
}

// Options configures New.
type Options struct {
	Device   compute.DeviceOptions
	Context  compute.ContextOptions
	Topology Topology

	// Script is passed to NewAddressSpace. The first two scripted
	// addresses, if any, are used by the fence and notifier blocks.
	Script []uint64
}

// New attaches a device and creates a context. Unset device fields get
// defaults: chipset 0xc0, 16 MPs, one GPC with one TPC.
func New(t testing.TB, opts Options) *Harness {
	t.Helper()
	if opts.Device.Chipset == 0 {
		opts.Device.Chipset = 0xc0
	}
	if opts.Topology == nil {
		opts.Topology = Topology{1}
	}
	h := &Harness{
		VAS:  NewAddressSpace(0x100000000, opts.Script...),
		Regs: NewRegisters(opts.Device.Index, opts.Topology),
		Ring: &pushbuf.Recorder{},
	}
	if opts.Device.Regs == nil {
		opts.Device.Regs = h.Regs
	}
	if opts.Device.Query == nil {
		opts.Device.Query = Querier{MPCount: 16}
	}
	dev, err := compute.Attach(opts.Device)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	h.Device = dev
	ctx, err := compute.NewContext(dev, h.VAS, h.Ring, opts.Context)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	h.Ctx = ctx
	return h
}

// Packets decodes everything submitted so far and clears the ring.
func (h *Harness) Packets(t testing.TB) []pushbuf.Packet {
	t.Helper()
	pkts, err := h.Ring.Packets()
	if err != nil {
		t.Fatalf("decoding ring: %v", err)
	}
	h.Ring.Reset()
	return pkts
}

// Doorbells returns the number of doorbells rung so far.
func (h *Harness) Doorbells() int {
	return len(h.Ring.Doorbells)
}
