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

// MP is the breakpoint state of one multiprocessor.
type MP struct {
	GPC uint32
	TPC uint32

	// Base is the MMIO address of the MP's register block.
	Base uint32

	Breakpoint uint32
	Status     uint32
}

// String implements fmt.Stringer.
func (m MP) String() string {
	return fmt.Sprintf("GPC %d TPC %d base %#x breakpoint %#x status %#x", m.GPC, m.TPC, m.Base, m.Breakpoint, m.Status)
}

// walkMPs calls fn with the register base of every MP, in GPC then TPC
// order, as reported by the unit count registers.
func walkMPs(regs compute.RegisterFile, index int, fn func(gpc, tpc, base uint32)) {
	gpcs := regs.Read32(index, nvgpu.NV_PGRAPH_FECS_GPC_COUNT) & nvgpu.CountMask
	for gpc := uint32(0); gpc < gpcs; gpc++ {
		tpcs := regs.Read32(index, nvgpu.GPCRegister(gpc, nvgpu.GPCTPCCount)) & nvgpu.CountMask
		for tpc := uint32(0); tpc < tpcs; tpc++ {
			fn(gpc, tpc, nvgpu.MPRegister(gpc, tpc, 0))
		}
	}
}

// EnableBreakpoints arms the breakpoint control of every MP and returns
// the number of MPs armed.
func EnableBreakpoints(regs compute.RegisterFile, index int) int {
	n := 0
	walkMPs(regs, index, func(_, _, base uint32) {
		regs.Write32(index, base+nvgpu.MPBreakpointControl, nvgpu.MPBreakpointEnable)
		n++
	})
	return n
}

// Breakpoints returns the breakpoint state of every MP.
func Breakpoints(regs compute.RegisterFile, index int) []MP {
	var mps []MP
	walkMPs(regs, index, func(gpc, tpc, base uint32) {
		mps = append(mps, MP{
			GPC:        gpc,
			TPC:        tpc,
			Base:       base,
			Breakpoint: regs.Read32(index, base+nvgpu.MPBreakpointControl),
			Status:     regs.Read32(index, base+nvgpu.MPStatus),
		})
	})
	return mps
}

// TriggerBreakpoint raises a breakpoint trap on every MP through the
// broadcast aperture, then writes back each MP's breakpoint control to
// latch it.
func TriggerBreakpoint(regs compute.RegisterFile, index int) {
	regs.Write32(index, nvgpu.MPBroadcastBase+nvgpu.MPBreakpointControl, nvgpu.MPBreakpointTrigger)
	walkMPs(regs, index, func(_, _, base uint32) {
		v := regs.Read32(index, base+nvgpu.MPBreakpointControl)
		regs.Write32(index, base+nvgpu.MPBreakpointControl, v)
	})
}

// ResumeBreakpoint resumes every MP stopped at a breakpoint.
func ResumeBreakpoint(regs compute.RegisterFile, index int) {
	regs.Write32(index, nvgpu.MPBroadcastBase+nvgpu.MPBreakpointControl, nvgpu.MPBreakpointUnpause)
}
