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

package nvgpu

// PGRAPH MMIO registers used to enumerate multiprocessors and control their
// debug state.
const (
	// NV_PGRAPH_FECS_GPC_COUNT holds the number of GPCs in bits 7..0.
	NV_PGRAPH_FECS_GPC_COUNT = 0x409604

	// GPC register space. Each GPC has GPCStride bytes.
	GPCBase   = 0x500000
	GPCStride = 0x8000

	// GPCTPCCount is the per-GPC register holding the TPC count in bits
	// 7..0, relative to the GPC base.
	GPCTPCCount = 0x2608

	// TPC register space within a GPC.
	TPCOffset = 0x4000
	TPCStride = 0x800

	// MPOffset is the MP register block within a TPC.
	MPOffset = 0x600

	// MPBreakpointControl enables breakpoint traps on an MP.
	MPBreakpointControl = 0x10

	// MPTrapHandler holds the signed displacement of the trap handler from
	// the code base.
	MPTrapHandler = 0x24

	// CountMask extracts unit counts from GPC and TPC count registers.
	CountMask = 0xff

	// MPBreakpointEnable is written to MPBreakpointControl.
	MPBreakpointEnable = 0x1
)

// Broadcast apertures write all units at once.
const (
	GPCBroadcastBase = 0x418000
	TPCBroadcast     = 0x1800
	MPBroadcastBase  = GPCBroadcastBase + TPCBroadcast + MPOffset
)

// GPCRegister returns the address of reg in GPC gpc.
func GPCRegister(gpc uint32, reg uint32) uint32 {
	return GPCBase + GPCStride*gpc + reg
}

// MPRegister returns the address of reg in the MP of TPC tpc in GPC gpc.
func MPRegister(gpc, tpc uint32, reg uint32) uint32 {
	return GPCRegister(gpc, TPCOffset+TPCStride*tpc+MPOffset+reg)
}

// Trap handler block.
const (
	// TrapHandlerSize is the size of the block holding the trap handler.
	TrapHandlerSize = 0x1000
)

// TrapHandler is the routine installed in the trap handler block: a single
// RTT (return from trap) instruction.
var TrapHandler = [2]uint32{0x00001de7, 0x98000000}

// MP status and breakpoint control values observed on the debug path.
const (
	// MPStatus reports the MP's trap state.
	MPStatus = 0x0c

	// MPBreakpointTrigger raises a breakpoint trap when written to the
	// broadcast MPBreakpointControl.
	MPBreakpointTrigger = 0x80000001

	// MPBreakpointUnpause resumes an MP stopped at a breakpoint.
	MPBreakpointUnpause = 0x40000001
)
