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

package fencewait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/computetest"
	_ "gdev.dev/gdev/pkg/compute/nvc0"
)

func testOptions() Options {
	return Options{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Timeout:         50 * time.Millisecond,
	}
}

// complete stores seq in its slot, as the device would.
func complete(ctx *compute.Context, seq uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&ctx.Fence.Map[nvgpu.FenceOffset(seq)])), seq)
}

func TestArmAndWait(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	tr := NewTracker(h.Ctx, testOptions())

	seq, err := tr.Arm(nvgpu.SubchCompute)
	if err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if seq != 0 || tr.Next() != 1 {
		t.Errorf("Arm = %d, next %d; want 0, 1", seq, tr.Next())
	}
	if h.Doorbells() != 1 {
		t.Errorf("doorbells = %d, want 1", h.Doorbells())
	}
	if tr.Done(seq) {
		t.Fatalf("fence done before completion")
	}

	go func() {
		time.Sleep(2 * time.Millisecond)
		complete(h.Ctx, seq)
	}()
	if err := tr.Wait(context.Background(), seq); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	tr := NewTracker(h.Ctx, testOptions())
	seq, err := tr.Arm(nvgpu.SubchM2MF)
	if err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if err := tr.Wait(context.Background(), seq); !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait = %v, want %v", err, ErrTimeout)
	}
}

func TestWaitCanceled(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	opts := testOptions()
	opts.Timeout = 0
	tr := NewTracker(h.Ctx, opts)
	seq, err := tr.Arm(nvgpu.SubchCompute)
	if err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx, seq); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestArmUnsupported(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	tr := NewTracker(h.Ctx, testOptions())
	if _, err := tr.Arm(nvgpu.SubchPCOPY0); !errors.Is(err, compute.ErrUnsupportedEngine) {
		t.Errorf("Arm = %v, want %v", err, compute.ErrUnsupportedEngine)
	}
	if tr.Next() != 0 {
		t.Errorf("failed Arm consumed a sequence")
	}
}

func TestSequenceSkipsSentinel(t *testing.T) {
	h := computetest.New(t, computetest.Options{})
	tr := NewTracker(h.Ctx, testOptions())
	tr.next = nvgpu.FenceUnset - 1
	if _, err := tr.Arm(nvgpu.SubchCompute); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if tr.Next() != 0 {
		t.Errorf("Next = %#x after wrap, want 0", tr.Next())
	}
}
