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

// Methods common to every class.
const (
	NV_SET_OBJECT = 0x0000
)

// FERMI_COMPUTE_A methods. Names follow envytools; methods without a known
// name keep their address.
const (
	NV90C0_NOP                   = 0x0100
	NV90C0_NOTIFY_ADDRESS_HIGH   = 0x0104
	NV90C0_SERIALIZE             = 0x0110
	NV90C0_LOCAL_POS_ALLOC       = 0x0204
	NV90C0_TEX_LIMITS            = 0x0210
	NV90C0_SHARED_BASE           = 0x0214
	NV90C0_MEM_BARRIER           = 0x021c
	NV90C0_GRIDDIM_YX            = 0x0238
	NV90C0_SHARED_SIZE           = 0x024c
	NV90C0_THREADS_ALLOC         = 0x0250
	NV90C0_BARRIER_ALLOC         = 0x0254
	NV90C0_BEGIN                 = 0x029c
	NV90C0_UNK02A0               = 0x02a0
	NV90C0_GPR_ALLOC             = 0x02c0
	NV90C0_GLOBAL_BASE_ENABLE    = 0x02c4
	NV90C0_GLOBAL_BASE           = 0x02c8
	NV90C0_CACHE_SPLIT           = 0x0308
	NV90C0_UNK0360               = 0x0360
	NV90C0_LAUNCH                = 0x0368
	NV90C0_UNK036C               = 0x036c
	NV90C0_BLOCKDIM_YX           = 0x03ac
	NV90C0_CP_START_ID           = 0x03b4
	NV90C0_MP_LIMIT              = 0x0758
	NV90C0_LOCAL_BASE            = 0x077c
	NV90C0_GRIDID                = 0x0780
	NV90C0_TEMP_ADDRESS_HIGH     = 0x0790
	NV90C0_END                   = 0x0a04
	NV90C0_UNK0A08               = 0x0a08
	NV90C0_CALL_LIMIT_LOG        = 0x0d64
	NV90C0_CODE_ADDRESS_HIGH     = 0x1608
	NV90C0_CB_BIND               = 0x1694
	NV90C0_FLUSH                 = 0x1698
	NV90C0_QUERY_ADDRESS_HIGH    = 0x1b00
	NV90C0_CB_SIZE               = 0x2380
	NV90C0_CB_POS                = 0x238c
	NV90C0_CB_DATA0              = 0x2390
	NV90C0_NOTIFY_WRITTEN_WAKEUP = 1
)

// NV90C0_FLUSH arguments.
const (
	FlushCode        = 0x0001
	FlushConstBuffer = 0x1000
	FlushGlobal      = 0x0110 // FLUSH_UNK8 | FLUSH_GLOBAL
)

// Compute engine constants.
const (
	// LaunchMode is the NV90C0_LAUNCH argument.
	LaunchMode = 0x1000

	// CallLimitLog is the NV90C0_CALL_LIMIT_LOG argument.
	CallLimitLog = 0xf

	// Unk02A0Default is what the blob writes to 0x2a0 at init.
	Unk02A0Default = 0x8000

	// MemBarrierAll is the pair of NV90C0_MEM_BARRIER arguments that
	// waits for every outstanding memory operation.
	MemBarrierOp    = 4
	MemBarrierFlags = 0x1111

	// QueryIntrShift positions the interrupt flag of the QUERY_GET word.
	QueryIntrShift = 20

	// CacheSplitSmall and CacheSplitLarge select the L1/shared split.
	// CacheSplitSmallSharedMax is the largest per-block shared memory
	// that still uses CacheSplitSmall (3 blocks of 16 warps per MP).
	CacheSplitSmall          = 1
	CacheSplitLarge          = 3
	CacheSplitSmallSharedMax = 16 * 1024
)

// CBBind returns the NV90C0_CB_BIND argument that binds bank as valid.
func CBBind(bank int) uint32 {
	return uint32(bank)<<8 | 1
}

// Global memory remapping. Each GLOBAL_BASE entry maps the high byte of a
// g[] address (INDEX, bits 23..16) onto a physical high byte (HIGH, bits
// 7..0). Bits 31..28 carry read_ok and write_ok.
const (
	GlobalBaseReadWrite  = 0xc << 28
	GlobalBaseIndexShift = 16

	// GlobalBaseSegments is the number of GLOBAL_BASE entries written at
	// init; segment 0xff is left as the flat default.
	GlobalBaseSegments = 0xff
)

// GlobalBaseEntry returns the identity remap entry of segment i.
func GlobalBaseEntry(i uint32) uint32 {
	return GlobalBaseReadWrite | i<<GlobalBaseIndexShift | i
}

// Constant bank 1 contents required by nvcc-compiled code. The purpose of the
// segment is unknown; the layout is reproduced as the blob writes it.
const (
	ConstBank1ZeroWords     = 0x20
	ConstBank1SentinelPos   = 0x100
	ConstBank1SentinelValue = 0x00fffc40
)

// ParamCallingConventionWords is the number of leading words of constant
// bank 0 reserved by the nvcc calling convention: shared base, local base,
// block x/y/z, grid x/y/z.
const ParamCallingConventionWords = 8

// FERMI_MEMORY_TO_MEMORY_FORMAT_A methods.
const (
	NV9039_OFFSET_OUT_HIGH    = 0x0238
	NV9039_EXEC               = 0x0300
	NV9039_OFFSET_IN_HIGH     = 0x030c
	NV9039_QUERY_ADDRESS_HIGH = 0x032c
)

// NV9039_EXEC arguments.
const (
	M2MFExecQuery   = 0x102110 // QUERY_SHORT | QUERY_YES | SRC_LINEAR | DST_LINEAR
	M2MFExecNoQuery = 0x100110 // QUERY_SHORT | SRC_LINEAR | DST_LINEAR

	M2MFPageSize     = 0x1000
	M2MFMaxLineCount = 2047
)

// GF100_DMA_COPY methods.
const (
	NV90B5_EXEC               = 0x0300
	NV90B5_SRC_ADDRESS_HIGH   = 0x030c
	NV90B5_XCNT               = 0x0324
	NV90B5_QUERY_ADDRESS_HIGH = 0x0338
)

// NV90B5_EXEC arguments.
const (
	PCOPYExec  = 0x3110 // QUERY_SHORT | QUERY | SRC_LINEAR | DST_LINEAR
	PCOPYPitch = 0x8000
)
