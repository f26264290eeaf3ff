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

package compute

import (
	"encoding/binary"
	"fmt"

	"gdev.dev/gdev/pkg/abi/nvgpu"
)

// MaxConstBanks is the number of constant memory banks a kernel may bind.
const MaxConstBanks = 16

// ConstBank describes one constant memory bank. A bank with a zero address
// or size is not bound.
type ConstBank struct {
	Addr   uint64
	Size   uint32
	Offset uint32
}

// Present returns true if the bank is bound at launch.
func (b ConstBank) Present() bool {
	return b.Addr != 0 && b.Size != 0
}

// Kernel describes one kernel launch.
type Kernel struct {
	// CodeAddr is the device address of the uploaded code, and CodePC the
	// entry offset within it.
	CodeAddr uint64
	CodeSize uint32
	CodePC   uint32

	// Cmem holds the constant banks, indexed by bank number.
	Cmem []ConstBank

	// Params is the parameter buffer uploaded to bank 0, as little-endian
	// words. If it holds at least eight words, the first eight are
	// replaced at launch by the shared base, local base, block and grid
	// dimensions.
	Params []byte

	LmemAddr      uint64
	LmemSizeTotal uint64
	LmemSize      uint32
	LmemSizeNeg   uint32
	LmemBase      uint32
	WarpLmemSize  uint32
	WarpStackSize uint32

	SmemBase uint32
	SmemSize uint32

	RegCount uint32
	BarCount uint32
	GridID   uint32

	Grid  [3]uint32
	Block [3]uint32
}

// Validate checks the descriptor. Errors wrap ErrInvariantViolation.
func (k *Kernel) Validate() error {
	if len(k.Params)%4 != 0 {
		return fmt.Errorf("parameter buffer is %d bytes, not a multiple of 4: %w", len(k.Params), ErrInvariantViolation)
	}
	if n := k.ParamCount(); n > nvgpu.MaxMethodCount {
		return fmt.Errorf("%d parameter words, at most %d supported: %w", n, nvgpu.MaxMethodCount, ErrInvariantViolation)
	}
	if len(k.Cmem) > MaxConstBanks {
		return fmt.Errorf("%d constant banks, at most %d supported: %w", len(k.Cmem), MaxConstBanks, ErrInvariantViolation)
	}
	for i, name := range []string{"x", "y", "z"} {
		if k.Grid[i] == 0 || k.Block[i] == 0 {
			return fmt.Errorf("zero %s dimension in grid %v block %v: %w", name, k.Grid, k.Block, ErrInvariantViolation)
		}
	}
	for i := 0; i < 2; i++ {
		if k.Grid[i] > 0xffff || k.Block[i] > 0xffff {
			return fmt.Errorf("grid %v or block %v does not fit 16 bits per x/y: %w", k.Grid, k.Block, ErrInvariantViolation)
		}
	}
	if len(k.Params) > 0 && len(k.Cmem) > 0 && k.Cmem[0].Present() {
		if end := uint64(k.Cmem[0].Offset) + uint64(len(k.Params)); end > uint64(k.Cmem[0].Size) {
			return fmt.Errorf("parameters end at %#x past bank 0 size %#x: %w", end, k.Cmem[0].Size, ErrInvariantViolation)
		}
	}
	return nil
}

// ParamCount returns the number of parameter words.
func (k *Kernel) ParamCount() int {
	return len(k.Params) / 4
}

// Param returns parameter word i.
func (k *Kernel) Param(i int) uint32 {
	return binary.LittleEndian.Uint32(k.Params[i*4:])
}

// SetParam sets parameter word i.
func (k *Kernel) SetParam(i int, v uint32) {
	binary.LittleEndian.PutUint32(k.Params[i*4:], v)
}

// ApplyCallingConvention overwrites the first parameter words with the
// values compiled kernels read from bank 0. It does nothing if there are
// fewer than eight words.
func (k *Kernel) ApplyCallingConvention() {
	if k.ParamCount() < nvgpu.ParamCallingConventionWords {
		return
	}
	for i, v := range [nvgpu.ParamCallingConventionWords]uint32{
		k.SmemBase, k.LmemBase,
		k.Block[0], k.Block[1], k.Block[2],
		k.Grid[0], k.Grid[1], k.Grid[2],
	} {
		k.SetParam(i, v)
	}
}

// Threads returns the number of threads per block.
func (k *Kernel) Threads() uint32 {
	return k.Block[0] * k.Block[1] * k.Block[2]
}
