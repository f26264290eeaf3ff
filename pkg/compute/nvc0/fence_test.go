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
	"encoding/binary"
	"errors"
	"testing"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/computetest"
	"gdev.dev/gdev/pkg/pushbuf"
	"github.com/google/go-cmp/cmp"
)

// signal stores seq and ts in the slot for seq, as the device would.
func signal(ctx *compute.Context, seq uint32, ts uint64) {
	off := nvgpu.FenceOffset(seq)
	binary.LittleEndian.PutUint32(ctx.Fence.Map[off+nvgpu.QuerySequenceOffset:], seq)
	binary.LittleEndian.PutUint64(ctx.Fence.Map[off+nvgpu.QueryTimestampOffset:], ts)
}

func TestFenceResetRead(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	eng := h.Ctx.Engine()

	eng.FenceReset(h.Ctx, 7)
	if got := eng.FenceRead(h.Ctx, 7); got != nvgpu.FenceUnset {
		t.Errorf("FenceRead after reset = %#x, want %#x", got, nvgpu.FenceUnset)
	}
	signal(h.Ctx, 7, 0x1234_5678_9abc)
	if got := eng.FenceRead(h.Ctx, 7); got != 7 {
		t.Errorf("FenceRead after signal = %d, want 7", got)
	}
	if got := eng.FenceTimestamp(h.Ctx, 7); got != 0x1234_5678_9abc {
		t.Errorf("FenceTimestamp = %#x, want 0x123456789abc", got)
	}
	if h.Doorbells() != 0 {
		t.Errorf("fence reset and read touched the ring")
	}

	// Sequences wrap onto the same slots.
	wrapped := uint32(nvgpu.FenceCount + 7)
	eng.FenceReset(h.Ctx, wrapped)
	if got := eng.FenceRead(h.Ctx, 7); got != nvgpu.FenceUnset {
		t.Errorf("FenceRead(7) after reset of %d = %#x, want %#x", wrapped, got, nvgpu.FenceUnset)
	}
}

func TestFenceWrite(t *testing.T) {
	const seq = 3
	for _, tc := range []struct {
		subch nvgpu.Subchannel
		want  []pushbuf.Packet
	}{
		{
			subch: nvgpu.SubchCompute,
			want: []pushbuf.Packet{
				computetest.Compute(0x110, 0),
				computetest.Compute(0x1b00, 0x1, 0x30, seq, 0),
			},
		},
		{
			subch: nvgpu.SubchM2MF,
			want: []pushbuf.Packet{
				computetest.Inc(nvgpu.SubchM2MF, 0x32c, 0x1, 0x30, seq),
			},
		},
		{
			subch: nvgpu.SubchPCOPY0,
			want: []pushbuf.Packet{
				computetest.Inc(nvgpu.SubchPCOPY0, 0x338, 0x1, 0x30, seq),
			},
		},
		{
			subch: nvgpu.SubchPCOPY1,
			want: []pushbuf.Packet{
				computetest.Inc(nvgpu.SubchPCOPY1, 0x338, 0x1, 0x30, seq),
			},
		},
	} {
		t.Run(tc.subch.String(), func(t *testing.T) {
			h := computetest.New(t, computetest.Options{
				Device: compute.DeviceOptions{
					CopyEngines:  2,
					EngineConfig: Config{Handler: DefaultHandlerPolicy(), UsePCOPY1: true},
				},
			})
			if h.Ctx.Fence.Addr != 0x1_0000_0000 {
				t.Fatalf("fence at %#x, want 0x100000000", h.Ctx.Fence.Addr)
			}
			if err := h.Ctx.Engine().FenceWrite(h.Ctx, tc.subch, seq); err != nil {
				t.Fatalf("FenceWrite failed: %v", err)
			}
			if h.Doorbells() != 1 {
				t.Errorf("doorbells = %d, want 1", h.Doorbells())
			}
			if diff := cmp.Diff(tc.want, h.Packets(t)); diff != "" {
				t.Errorf("fence packets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFenceWriteUnsupported(t *testing.T) {
	for _, tc := range []struct {
		name  string
		opts  compute.DeviceOptions
		subch nvgpu.Subchannel
	}{
		{name: "no copy engines", subch: nvgpu.SubchPCOPY0},
		{name: "pcopy1 disabled", opts: compute.DeviceOptions{CopyEngines: 2}, subch: nvgpu.SubchPCOPY1},
		{name: "one copy engine", opts: compute.DeviceOptions{
			CopyEngines:  1,
			EngineConfig: Config{Handler: DefaultHandlerPolicy(), UsePCOPY1: true},
		}, subch: nvgpu.SubchPCOPY1},
		{name: "unknown subchannel", subch: 6},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := computetest.New(t, computetest.Options{Device: tc.opts})
			if err := h.Ctx.Engine().FenceWrite(h.Ctx, tc.subch, 1); !errors.Is(err, compute.ErrUnsupportedEngine) {
				t.Errorf("FenceWrite = %v, want %v", err, compute.ErrUnsupportedEngine)
			}
			if len(h.Ring.Words) != 0 || h.Doorbells() != 0 {
				t.Errorf("unsupported fence touched the ring")
			}
		})
	}
}
