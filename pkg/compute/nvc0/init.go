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
	"fmt"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/log"
)

// fifoClearWords is the number of zero words written ahead of the first
// command so that stale ring contents are never replayed.
const fifoClearWords = 128 / 4

// Init implements compute.Engine.Init.
//
// The global memory remap table and the breakpoint registers are device
// wide. Callers initializing several contexts on one device must serialize
// Init themselves.
func (e *Engine) Init(ctx *compute.Context) error {
	mps, err := e.dev.Query.Query(compute.QueryMPCount)
	if err != nil {
		return fmt.Errorf("querying MP count: %w", err)
	}
	if ctx.Debug && e.dev.Regs == nil {
		return fmt.Errorf("debugging without register access: %w", compute.ErrUnsupportedEngine)
	}

	for seq := uint32(0); seq < nvgpu.FenceCount; seq++ {
		e.FenceReset(ctx, seq)
	}

	pb := ctx.Pushbuf
	for i := 0; i < fifoClearWords; i++ {
		pb.OutZero()
	}
	if err := pb.Submit(); err != nil {
		return err
	}

	var bound [nvgpu.MaxSubchannel + 1]uint32
	bind := func(subch nvgpu.Subchannel, object uint32) {
		pb.BeginMethod(subch, nvgpu.NV_SET_OBJECT, 1)
		pb.Out(object)
		bound[subch] = object
	}
	bind(nvgpu.SubchM2MF, nvgpu.M2MFObject)
	bind(nvgpu.SubchCompute, nvgpu.ComputeObject)
	// Unprivileged contexts and newer engine revisions get the copy
	// engines bound by the kernel driver.
	if e.dev.Privileged && e.dev.ExplicitCopyBind {
		if e.hasSubchannel(nvgpu.SubchPCOPY0) {
			bind(nvgpu.SubchPCOPY0, nvgpu.PCOPY0Object)
		}
		if e.hasSubchannel(nvgpu.SubchPCOPY1) {
			bind(nvgpu.SubchPCOPY1, nvgpu.PCOPY1Object)
		}
	}
	if err := pb.Submit(); err != nil {
		return err
	}
	ctx.Bound = bound

	// The blob starts with a NOP.
	method1(pb, nvgpu.NV90C0_NOP, 0)
	method1(pb, nvgpu.NV90C0_MP_LIMIT, uint32(mps))
	method1(pb, nvgpu.NV90C0_CALL_LIMIT_LOG, nvgpu.CallLimitLog)

	method1(pb, nvgpu.NV90C0_UNK02A0, nvgpu.Unk02A0Default)
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_GRIDDIM_YX, 2)
	pb.Out(1<<16 | 1)
	pb.Out(1)
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_BLOCKDIM_YX, 2)
	pb.Out(1<<16 | 1)
	pb.Out(1)

	// Map g[] segment i to global memory segment i, read/write. Segment
	// 0xff keeps the flat default mapping.
	method1(pb, nvgpu.NV90C0_GLOBAL_BASE_ENABLE, 0)
	for i := uint32(0); i < nvgpu.GlobalBaseSegments; i++ {
		method1(pb, nvgpu.NV90C0_GLOBAL_BASE, nvgpu.GlobalBaseEntry(i))
	}
	method1(pb, nvgpu.NV90C0_GLOBAL_BASE_ENABLE, 1)

	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_CODE_ADDRESS_HIGH, 2)
	pb.OutAddr(0)
	method1(pb, nvgpu.NV90C0_FLUSH, nvgpu.FlushCode)
	if err := pb.Submit(); err != nil {
		return err
	}

	if ctx.Debug {
		n := EnableBreakpoints(e.dev.Regs, e.dev.Index)
		log.Infof("Armed breakpoints on %d MPs", n)
	}
	log.Infof("Initialized channel %d: %d MPs, debug: %t", ctx.Channel, mps, ctx.Debug)
	return nil
}
