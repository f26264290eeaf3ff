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

package compute_test

import (
	"errors"
	"testing"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/computetest"
	_ "gdev.dev/gdev/pkg/compute/nvc0"
	"gdev.dev/gdev/pkg/pushbuf"
)

func TestGenerationOf(t *testing.T) {
	for _, tc := range []struct {
		chipset uint32
		ok      bool
	}{
		{chipset: 0xc0, ok: true},
		{chipset: 0xc8, ok: true},
		{chipset: 0xd9, ok: true},
		{chipset: 0x50, ok: false},
		{chipset: 0xe4, ok: false},
	} {
		gen, ok := compute.GenerationOf(tc.chipset)
		if ok != tc.ok || (ok && gen != compute.GenerationNVC0) {
			t.Errorf("GenerationOf(%#x) = %q, %t; want nvc0: %t", tc.chipset, gen, ok, tc.ok)
		}
	}
}

func TestAttach(t *testing.T) {
	dev, err := compute.Attach(compute.DeviceOptions{Chipset: 0xc1, Query: computetest.Querier{MPCount: 2}})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if dev.Generation != compute.GenerationNVC0 || dev.Engine == nil {
		t.Errorf("Attach = %+v, want an nvc0 engine", dev)
	}

	if _, err := compute.Attach(compute.DeviceOptions{Chipset: 0xa3}); !errors.Is(err, compute.ErrUnsupportedEngine) {
		t.Errorf("Attach(0xa3) = %v, want %v", err, compute.ErrUnsupportedEngine)
	}
	if _, err := compute.Attach(compute.DeviceOptions{Chipset: 0xc0, CopyEngines: 3}); !errors.Is(err, compute.ErrInvariantViolation) {
		t.Errorf("Attach with 3 copy engines = %v, want %v", err, compute.ErrInvariantViolation)
	}
	if _, err := compute.Attach(compute.DeviceOptions{Chipset: 0xc0, EngineConfig: "fast"}); !errors.Is(err, compute.ErrInvariantViolation) {
		t.Errorf("Attach with bad engine config = %v, want %v", err, compute.ErrInvariantViolation)
	}
}

func TestRegisterTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("second Register of nvc0 did not panic")
		}
	}()
	compute.Register(compute.GenerationNVC0, nil)
}

func TestHasSubchannel(t *testing.T) {
	dev := &compute.Device{DeviceOptions: compute.DeviceOptions{CopyEngines: 1}}
	for subch, want := range map[nvgpu.Subchannel]bool{
		nvgpu.SubchCompute: true,
		nvgpu.SubchM2MF:    true,
		nvgpu.SubchPCOPY0:  true,
		nvgpu.SubchPCOPY1:  false,
		0:                  false,
	} {
		if got := dev.HasSubchannel(subch); got != want {
			t.Errorf("HasSubchannel(%s) = %t, want %t", subch, got, want)
		}
	}
}

func TestNewContext(t *testing.T) {
	dev, err := compute.Attach(compute.DeviceOptions{Chipset: 0xc0})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	vas := computetest.NewAddressSpace(0x1000_0000)
	ctx, err := compute.NewContext(dev, vas, &pushbuf.Recorder{}, compute.ContextOptions{Channel: 9})
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	if ctx.Fence.Size != nvgpu.FenceBufferSize || ctx.Fence.Placement != compute.PlacementHost {
		t.Errorf("fence block = %d bytes %s, want %d bytes host", ctx.Fence.Size, ctx.Fence.Placement, nvgpu.FenceBufferSize)
	}
	if ctx.Notify.Size != compute.NotifierSize {
		t.Errorf("notifier block = %d bytes, want %d", ctx.Notify.Size, compute.NotifierSize)
	}
	if ctx.Engine() != dev.Engine {
		t.Errorf("context engine differs from device engine")
	}
	ctx.Close()
	if len(vas.Live) != 0 {
		t.Errorf("%d blocks live after Close", len(vas.Live))
	}
	// Close is idempotent.
	ctx.Close()
}

func TestNewContextAllocFailure(t *testing.T) {
	dev, err := compute.Attach(compute.DeviceOptions{Chipset: 0xc0})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	vas := computetest.NewAddressSpace(0x1000_0000)
	vas.FailAt = 2
	if _, err := compute.NewContext(dev, vas, &pushbuf.Recorder{}, compute.ContextOptions{}); !errors.Is(err, compute.ErrOutOfMemory) {
		t.Errorf("NewContext = %v, want %v", err, compute.ErrOutOfMemory)
	}
	if len(vas.Live) != 0 || len(vas.Freed) != 1 {
		t.Errorf("fence block not released: %d live, %d freed", len(vas.Live), len(vas.Freed))
	}
}
