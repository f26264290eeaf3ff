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

package nvc0

import (
	"errors"
	"testing"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/computetest"
	"gdev.dev/gdev/pkg/mmio"
	"gdev.dev/gdev/pkg/pushbuf"
	"github.com/google/go-cmp/cmp"
)

func initPackets(binds ...pushbuf.Packet) []pushbuf.Packet {
	c := computetest.Compute
	var want []pushbuf.Packet
	for i := 0; i < 32; i++ {
		want = append(want, pushbuf.Packet{Padding: true})
	}
	want = append(want, binds...)
	want = append(want,
		c(0x100, 0),
		c(0x758, 16),
		c(0xd64, 0xf),
		c(0x2a0, 0x8000),
		c(0x238, 0x10001, 1),
		c(0x3ac, 0x10001, 1),
		c(0x2c4, 0),
	)
	for i := uint32(0); i < 0xff; i++ {
		want = append(want, c(0x2c8, 0xc<<28|i<<16|i))
	}
	return append(want,
		c(0x2c4, 1),
		c(0x1608, 0, 0),
		c(0x1698, 0x1),
	)
}

func TestInit(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	eng := h.Ctx.Engine()
	for _, seq := range []uint32{0, 1, nvgpu.FenceCount - 1} {
		signal(h.Ctx, seq, 0)
	}
	if err := eng.Init(h.Ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	for seq := uint32(0); seq < nvgpu.FenceCount; seq++ {
		if got := eng.FenceRead(h.Ctx, seq); got != nvgpu.FenceUnset {
			t.Fatalf("slot %d = %#x after Init, want %#x", seq, got, nvgpu.FenceUnset)
		}
	}

	n := len(h.Ring.Words)
	if diff := cmp.Diff([]int{32, 36, n}, h.Ring.Doorbells); diff != "" {
		t.Errorf("doorbells mismatch (-want +got):\n%s", diff)
	}
	want := initPackets(
		computetest.Inc(nvgpu.SubchM2MF, 0, 0x9039),
		computetest.Compute(0, 0x90c0),
	)
	if diff := cmp.Diff(want, h.Packets(t)); diff != "" {
		t.Errorf("init packets mismatch (-want +got):\n%s", diff)
	}
	if h.Ctx.Bound[nvgpu.SubchCompute] != nvgpu.ComputeObject || h.Ctx.Bound[nvgpu.SubchPCOPY0] != 0 {
		t.Errorf("bound objects = %#x", h.Ctx.Bound)
	}
	if len(h.Regs.Writes()) != 0 {
		t.Errorf("Init without debugging wrote registers: %v", h.Regs.Writes())
	}
}

func TestInitCopyBinding(t *testing.T) {
	m2mf := computetest.Inc(nvgpu.SubchM2MF, 0, 0x9039)
	comp := computetest.Compute(0, 0x90c0)
	pc0 := computetest.Inc(nvgpu.SubchPCOPY0, 0, 0x490b5)
	pc1 := computetest.Inc(nvgpu.SubchPCOPY1, 0, 0x590b8)
	withPCOPY1 := Config{Handler: DefaultHandlerPolicy(), UsePCOPY1: true}
	for _, tc := range []struct {
		name string
		opts compute.DeviceOptions
		want []pushbuf.Packet
	}{
		{
			name: "unprivileged",
			opts: compute.DeviceOptions{CopyEngines: 2, ExplicitCopyBind: true, EngineConfig: withPCOPY1},
			want: []pushbuf.Packet{m2mf, comp},
		},
		{
			name: "implicit bind",
			opts: compute.DeviceOptions{CopyEngines: 2, Privileged: true, EngineConfig: withPCOPY1},
			want: []pushbuf.Packet{m2mf, comp},
		},
		{
			name: "pcopy0",
			opts: compute.DeviceOptions{CopyEngines: 2, Privileged: true, ExplicitCopyBind: true},
			want: []pushbuf.Packet{m2mf, comp, pc0},
		},
		{
			name: "pcopy0 and pcopy1",
			opts: compute.DeviceOptions{CopyEngines: 2, Privileged: true, ExplicitCopyBind: true, EngineConfig: withPCOPY1},
			want: []pushbuf.Packet{m2mf, comp, pc0, pc1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := computetest.New(t, computetest.Options{Device: tc.opts})
			if err := h.Ctx.Engine().Init(h.Ctx); err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			if diff := cmp.Diff(initPackets(tc.want...), h.Packets(t)); diff != "" {
				t.Errorf("init packets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInitDebug(t *testing.T) {
	h := computetest.New(t, computetest.Options{
		Context:  compute.ContextOptions{Debug: true},
		Topology: computetest.Topology{2, 1},
	})
	if err := h.Ctx.Engine().Init(h.Ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	want := []mmio.Write{
		{Offset: 0x500000 + 0x4000 + 0x600 + 0x10, Value: 1},
		{Offset: 0x500000 + 0x4000 + 0x800 + 0x600 + 0x10, Value: 1},
		{Offset: 0x508000 + 0x4000 + 0x600 + 0x10, Value: 1},
	}
	if diff := cmp.Diff(want, h.Regs.Writes()); diff != "" {
		t.Errorf("breakpoint writes mismatch (-want +got):\n%s", diff)
	}
}

func TestInitQueryError(t *testing.T) {
	boom := errors.New("no such device")
	h := computetest.New(t, computetest.Options{
		Device: compute.DeviceOptions{Query: computetest.Querier{Err: boom}},
	})
	if err := h.Ctx.Engine().Init(h.Ctx); !errors.Is(err, boom) {
		t.Errorf("Init = %v, want %v", err, boom)
	}
	if len(h.Ring.Words) != 0 {
		t.Errorf("failed Init emitted %d words", len(h.Ring.Words))
	}
}

func TestBreakpoints(t *testing.T) {
	regs := computetest.NewRegisters(1, computetest.Topology{1, 2})
	if n := EnableBreakpoints(regs, 1); n != 3 {
		t.Errorf("EnableBreakpoints armed %d MPs, want 3", n)
	}
	regs.Set(1, 0x508000+0x4000+0x800+0x600+0x0c, 0x5)
	want := []MP{
		{GPC: 0, TPC: 0, Base: 0x504600, Breakpoint: 1},
		{GPC: 1, TPC: 0, Base: 0x50c600, Breakpoint: 1},
		{GPC: 1, TPC: 1, Base: 0x50ce00, Breakpoint: 1, Status: 0x5},
	}
	if diff := cmp.Diff(want, Breakpoints(regs, 1)); diff != "" {
		t.Errorf("Breakpoints mismatch (-want +got):\n%s", diff)
	}

	regs.ResetWrites()
	TriggerBreakpoint(regs, 1)
	ResumeBreakpoint(regs, 1)
	wantWrites := []mmio.Write{
		{Index: 1, Offset: 0x419e10, Value: 0x80000001},
		{Index: 1, Offset: 0x504610, Value: 1},
		{Index: 1, Offset: 0x50c610, Value: 1},
		{Index: 1, Offset: 0x50ce10, Value: 1},
		{Index: 1, Offset: 0x419e10, Value: 0x40000001},
	}
	if diff := cmp.Diff(wantWrites, regs.Writes()); diff != "" {
		t.Errorf("trigger writes mismatch (-want +got):\n%s", diff)
	}
}
