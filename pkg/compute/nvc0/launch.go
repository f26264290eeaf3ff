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
	"gdev.dev/gdev/pkg/metric"
	"gdev.dev/gdev/pkg/pushbuf"
)

// Launch implements compute.Engine.Launch.
func (e *Engine) Launch(ctx *compute.Context, k *compute.Kernel) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if ctx.Debug {
		if err := e.prepareHandler(ctx, k.CodeAddr); err != nil {
			return fmt.Errorf("installing trap handler: %w", err)
		}
	}

	pb := ctx.Pushbuf
	cacheSplit := uint32(nvgpu.CacheSplitSmall)
	if k.SmemSize > nvgpu.CacheSplitSmallSharedMax {
		cacheSplit = nvgpu.CacheSplitLarge
	}

	// Local memory.
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_TEMP_ADDRESS_HIGH, 5)
	pb.OutAddr(k.LmemAddr)
	pb.OutAddr(k.LmemSizeTotal)
	pb.Out(k.WarpLmemSize)
	method1(pb, nvgpu.NV90C0_LOCAL_BASE, k.LmemBase)
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_LOCAL_POS_ALLOC, 3)
	pb.Out(k.LmemSize)
	pb.Out(k.LmemSizeNeg)
	pb.Out(k.WarpStackSize)

	// Shared memory.
	method1(pb, nvgpu.NV90C0_CACHE_SPLIT, cacheSplit)
	method1(pb, nvgpu.NV90C0_SHARED_BASE, k.SmemBase)
	method1(pb, nvgpu.NV90C0_SHARED_SIZE, k.SmemSize)

	// Code must already be resident.
	method1(pb, nvgpu.NV90C0_FLUSH, nvgpu.FlushCode)
	method1(pb, nvgpu.NV90C0_CP_START_ID, uint32(k.CodeAddr+uint64(k.CodePC)))

	for x, bank := range k.Cmem {
		if !bank.Present() {
			continue
		}
		pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_CB_SIZE, 3)
		pb.Out(bank.Size)
		pb.OutAddr(bank.Addr)
		method1(pb, nvgpu.NV90C0_CB_BIND, nvgpu.CBBind(x))
		switch x {
		case 0:
			k.ApplyCallingConvention()
			n := k.ParamCount()
			method1(pb, nvgpu.NV90C0_CB_POS, bank.Offset)
			pb.BeginConstMethod(nvgpu.SubchCompute, nvgpu.NV90C0_CB_DATA0, n)
			for i := 0; i < n; i++ {
				pb.Out(k.Param(i))
			}
		case 1:
			// Compiled kernels expect this exact c1[] layout.
			method1(pb, nvgpu.NV90C0_CB_POS, 0)
			pb.BeginConstMethod(nvgpu.SubchCompute, nvgpu.NV90C0_CB_DATA0, nvgpu.ConstBank1ZeroWords)
			for i := 0; i < nvgpu.ConstBank1ZeroWords; i++ {
				pb.Out(0)
			}
			method1(pb, nvgpu.NV90C0_CB_POS, nvgpu.ConstBank1SentinelPos)
			pb.BeginConstMethod(nvgpu.SubchCompute, nvgpu.NV90C0_CB_DATA0, 1)
			pb.Out(nvgpu.ConstBank1SentinelValue)
		}
	}
	method1(pb, nvgpu.NV90C0_FLUSH, nvgpu.FlushConstBuffer)

	// Geometry.
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_GRIDDIM_YX, 2)
	pb.Out(k.Grid[1]<<16 | k.Grid[0])
	pb.Out(k.Grid[2])
	pb.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_BLOCKDIM_YX, 2)
	pb.Out(k.Block[1]<<16 | k.Block[0])
	pb.Out(k.Block[2])
	method1(pb, nvgpu.NV90C0_THREADS_ALLOC, k.Threads())

	method1(pb, nvgpu.NV90C0_GPR_ALLOC, k.RegCount)
	method1(pb, nvgpu.NV90C0_BARRIER_ALLOC, k.BarCount)

	method1(pb, nvgpu.NV90C0_GRIDID, k.GridID)
	method1(pb, nvgpu.NV90C0_UNK036C, 0)
	method1(pb, nvgpu.NV90C0_FLUSH, nvgpu.FlushGlobal)
	method1(pb, nvgpu.NV90C0_BEGIN, 0)
	method1(pb, nvgpu.NV90C0_UNK0A08, 0)

	method1(pb, nvgpu.NV90C0_LAUNCH, nvgpu.LaunchMode)
	method1(pb, nvgpu.NV90C0_END, 0)
	method1(pb, nvgpu.NV90C0_UNK0360, 1)

	if err := pb.Submit(); err != nil {
		return err
	}
	metric.Launches.Inc()
	if log.IsLogging(log.Debug) {
		dumpKernel(k)
	}
	return nil
}

// method1 encodes a single-argument compute method.
func method1(pb *pushbuf.Encoder, method, arg uint32) {
	pb.BeginMethod(nvgpu.SubchCompute, method, 1)
	pb.Out(arg)
}

func dumpKernel(k *compute.Kernel) {
	log.Debugf("Launched kernel at code %#x (size %#x, pc %#x)", k.CodeAddr, k.CodeSize, k.CodePC)
	for i, b := range k.Cmem {
		log.Debugf("  cmem[%d]: addr %#x size %#x offset %#x", i, b.Addr, b.Size, b.Offset)
	}
	for i := 0; i < k.ParamCount(); i++ {
		log.Debugf("  param[%d] = %#x", i, k.Param(i))
	}
	log.Debugf("  lmem: addr %#x total %#x size %#x neg %#x base %#x", k.LmemAddr, k.LmemSizeTotal, k.LmemSize, k.LmemSizeNeg, k.LmemBase)
	log.Debugf("  smem: base %#x size %#x", k.SmemBase, k.SmemSize)
	log.Debugf("  warp: stack %#x lmem %#x", k.WarpStackSize, k.WarpLmemSize)
	log.Debugf("  regs %d bars %d grid id %d grid %v block %v", k.RegCount, k.BarCount, k.GridID, k.Grid, k.Block)
}
