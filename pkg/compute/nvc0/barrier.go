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
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
)

// MemoryBarrier implements compute.Engine.MemoryBarrier.
func (e *Engine) MemoryBarrier(ctx *compute.Context) error {
	pb := ctx.Pushbuf
	// Must be non-incrementing.
	pb.BeginConstMethod(nvgpu.SubchCompute, nvgpu.NV90C0_MEM_BARRIER, 2)
	pb.Out(nvgpu.MemBarrierOp)
	pb.Out(nvgpu.MemBarrierFlags)
	return pb.Submit()
}

// NotifyInterrupt implements compute.Engine.NotifyInterrupt. The channel id
// rides in the trailing NOP so the waiter can identify the source.
func (e *Engine) NotifyInterrupt(ctx *compute.Context) error {
	pb := ctx.Pushbuf
	method1(pb, nvgpu.NV90C0_SERIALIZE, 0)
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_NOTIFY_ADDRESS_HIGH, 3)
	pb.OutAddr(ctx.Notify.Addr)
	pb.Out(nvgpu.NV90C0_NOTIFY_WRITTEN_WAKEUP)
	method1(pb, nvgpu.NV90C0_NOP, ctx.Channel)
	return pb.Submit()
}
