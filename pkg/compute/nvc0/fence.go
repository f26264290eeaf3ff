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
)

// FenceRead implements compute.Engine.FenceRead.
func (e *Engine) FenceRead(ctx *compute.Context, seq uint32) uint32 {
	return loadUint32(ctx.Fence.Map, nvgpu.FenceOffset(seq)+nvgpu.QuerySequenceOffset)
}

// FenceTimestamp implements compute.Engine.FenceTimestamp.
func (e *Engine) FenceTimestamp(ctx *compute.Context, seq uint32) uint64 {
	return loadUint64(ctx.Fence.Map, nvgpu.FenceOffset(seq)+nvgpu.QueryTimestampOffset)
}

// FenceReset implements compute.Engine.FenceReset.
func (e *Engine) FenceReset(ctx *compute.Context, seq uint32) {
	storeUint32(ctx.Fence.Map, nvgpu.FenceOffset(seq)+nvgpu.QuerySequenceOffset, nvgpu.FenceUnset)
}

// FenceWrite implements compute.Engine.FenceWrite.
func (e *Engine) FenceWrite(ctx *compute.Context, subch nvgpu.Subchannel, seq uint32) error {
	if !e.hasSubchannel(subch) {
		return fmt.Errorf("fence on %s: %w", subch, compute.ErrUnsupportedEngine)
	}
	addr := ctx.Fence.Addr + nvgpu.FenceOffset(seq)
	pb := ctx.Pushbuf
	switch subch {
	case nvgpu.SubchCompute:
		method1(pb, nvgpu.NV90C0_SERIALIZE, 0)
		pb.BeginMethod(subch, nvgpu.NV90C0_QUERY_ADDRESS_HIGH, 4)
		pb.OutAddr(addr)
		pb.Out(seq)
		pb.Out(0 << nvgpu.QueryIntrShift) // no interrupt
	case nvgpu.SubchM2MF:
		pb.BeginMethod(subch, nvgpu.NV9039_QUERY_ADDRESS_HIGH, 3)
		pb.OutAddr(addr)
		pb.Out(seq)
	case nvgpu.SubchPCOPY0, nvgpu.SubchPCOPY1:
		pb.BeginMethod(subch, nvgpu.NV90B5_QUERY_ADDRESS_HIGH, 3)
		pb.OutAddr(addr)
		pb.Out(seq)
	}
	return pb.Submit()
}

// hasSubchannel returns true if the engine drives subch on this device.
func (e *Engine) hasSubchannel(subch nvgpu.Subchannel) bool {
	if subch == nvgpu.SubchPCOPY1 && !e.cfg.UsePCOPY1 {
		return false
	}
	return e.dev.HasSubchannel(subch)
}
