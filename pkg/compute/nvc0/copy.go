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
	"math"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/metric"
)

func checkCopySize(size uint64) error {
	if size > math.MaxUint32 {
		return fmt.Errorf("copy of %#x bytes exceeds 32-bit size: %w", size, compute.ErrInvariantViolation)
	}
	return nil
}

// CopyNow implements compute.Engine.CopyNow. The copy is split into lines
// of one page, at most M2MFMaxLineCount lines per command, plus a single
// short line for the remainder. All commands share one submit.
func (e *Engine) CopyNow(ctx *compute.Context, dst, src, size uint64) error {
	if err := checkCopySize(size); err != nil {
		return err
	}
	const page = nvgpu.M2MFPageSize
	pages := size / page
	rem := uint32(size % page)
	pb := ctx.Pushbuf
	cmds := 0

	for pages > 0 {
		lines := min(pages, nvgpu.M2MFMaxLineCount)
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_OFFSET_OUT_HIGH, 2)
		pb.OutAddr(dst)
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_OFFSET_IN_HIGH, 6)
		pb.OutAddr(src)
		pb.Out(page) // pitch in
		pb.Out(page) // pitch out
		pb.Out(page) // line length
		pb.Out(uint32(lines))
		exec := uint32(nvgpu.M2MFExecNoQuery)
		if lines == pages && rem == 0 {
			exec = nvgpu.M2MFExecQuery
		}
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_EXEC, 1)
		pb.Out(exec)
		pages -= lines
		dst += page * lines
		src += page * lines
		cmds++
	}

	if rem != 0 {
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_OFFSET_OUT_HIGH, 2)
		pb.OutAddr(dst)
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_OFFSET_IN_HIGH, 6)
		pb.OutAddr(src)
		pb.Out(rem)
		pb.Out(rem)
		pb.Out(rem)
		pb.Out(1)
		pb.BeginMethod(nvgpu.SubchM2MF, nvgpu.NV9039_EXEC, 1)
		pb.Out(nvgpu.M2MFExecQuery)
		cmds++
	}

	if err := pb.Submit(); err != nil {
		return err
	}
	recordCopy(nvgpu.SubchM2MF, size, cmds)
	return nil
}

// CopyAsync implements compute.Engine.CopyAsync. Whole pitches are copied
// as one rectangle and the remainder as a single row, each submitted on its
// own.
func (e *Engine) CopyAsync(ctx *compute.Context, dst, src, size uint64) error {
	if !e.dev.HasSubchannel(nvgpu.SubchPCOPY0) {
		return fmt.Errorf("async copy: %w", compute.ErrUnsupportedEngine)
	}
	if err := checkCopySize(size); err != nil {
		return err
	}
	const pitch = nvgpu.PCOPYPitch
	rows := uint32(size / pitch)
	rem := uint32(size % pitch)
	bulk := uint64(rows) * pitch

	if rows != 0 {
		if err := pcopy(ctx, dst, src, pitch, pitch, rows); err != nil {
			return err
		}
		recordCopy(nvgpu.SubchPCOPY0, bulk, 1)
	}
	if rem != 0 {
		if err := pcopy(ctx, dst+bulk, src+bulk, 0, rem, 1); err != nil {
			return err
		}
		recordCopy(nvgpu.SubchPCOPY0, uint64(rem), 1)
	}
	return nil
}

// pcopy submits one PCOPY0 rectangle of rows rows of xcnt bytes.
func pcopy(ctx *compute.Context, dst, src uint64, pitch, xcnt, rows uint32) error {
	pb := ctx.Pushbuf
	pb.BeginMethod(nvgpu.SubchPCOPY0, nvgpu.NV90B5_SRC_ADDRESS_HIGH, 6)
	pb.OutAddr(src)
	pb.OutAddr(dst)
	pb.Out(pitch) // src
	pb.Out(pitch) // dst
	pb.BeginMethod(nvgpu.SubchPCOPY0, nvgpu.NV90B5_XCNT, 2)
	pb.Out(xcnt)
	pb.Out(rows)
	pb.BeginMethod(nvgpu.SubchPCOPY0, nvgpu.NV90B5_EXEC, 1)
	pb.Out(nvgpu.PCOPYExec)
	return pb.Submit()
}

func recordCopy(subch nvgpu.Subchannel, bytes uint64, cmds int) {
	metric.CopyBytes.WithLabelValues(subch.String()).Add(float64(bytes))
	metric.CopyCommands.WithLabelValues(subch.String()).Add(float64(cmds))
}
