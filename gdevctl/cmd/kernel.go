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

package cmd

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"gdev.dev/gdev/pkg/compute"
	"github.com/BurntSushi/toml"
)

const (
	// defaultLmemBase and defaultSmemBase are the window bases used by
	// compiled kernels.
	defaultLmemBase = 0x01000000
	defaultSmemBase = 0x0

	// warpSize and warpsPerMP size the local memory backing store.
	warpSize   = 32
	warpsPerMP = 48

	// cmemAlign is the size granularity of constant banks.
	cmemAlign = 0x100
)

// kernelDesc is the TOML form of a kernel launch.
type kernelDesc struct {
	// CodeFile, relative to the descriptor, holds the machine code. If
	// empty, CodeSize bytes of zeros are uploaded.
	CodeFile string `toml:"code_file"`
	CodeSize uint32 `toml:"code_size"`
	CodePC   uint32 `toml:"code_pc"`

	// Params are the bank 0 words. The first eight are overwritten by the
	// calling convention.
	Params []uint32 `toml:"params"`

	// Cmem sizes banks 1 and up, in bank order.
	Cmem []uint32 `toml:"cmem"`

	LmemSize      uint32  `toml:"lmem_size"`
	LmemSizeNeg   uint32  `toml:"lmem_size_neg"`
	LmemBase      *uint32 `toml:"lmem_base"`
	WarpStackSize uint32  `toml:"warp_stack_size"`

	SmemBase *uint32 `toml:"smem_base"`
	SmemSize uint32  `toml:"smem_size"`

	RegCount uint32 `toml:"reg_count"`
	BarCount uint32 `toml:"bar_count"`
	GridID   uint32 `toml:"grid_id"`

	Grid  [3]uint32 `toml:"grid"`
	Block [3]uint32 `toml:"block"`

	// code is the loaded machine code.
	code []byte
}

// loadKernelDesc reads a descriptor and the code it names.
func loadKernelDesc(path string) (*kernelDesc, error) {
	d := &kernelDesc{
		Grid:  [3]uint32{1, 1, 1},
		Block: [3]uint32{1, 1, 1},
	}
	md, err := toml.DecodeFile(path, d)
	if err != nil {
		return nil, fmt.Errorf("reading kernel descriptor %q: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("kernel descriptor %q: unknown keys %v", path, undec)
	}
	if d.CodeFile != "" {
		codePath := d.CodeFile
		if !filepath.IsAbs(codePath) {
			codePath = filepath.Join(filepath.Dir(path), codePath)
		}
		d.code, err = os.ReadFile(codePath)
		if err != nil {
			return nil, err
		}
		if d.CodeSize == 0 {
			d.CodeSize = uint32(len(d.code))
		}
		if uint32(len(d.code)) > d.CodeSize {
			return nil, fmt.Errorf("code file %q is %d bytes, larger than code_size %#x", codePath, len(d.code), d.CodeSize)
		}
	}
	if d.CodeSize == 0 {
		return nil, fmt.Errorf("kernel descriptor %q: no code", path)
	}
	if len(d.Cmem)+1 > compute.MaxConstBanks {
		return nil, fmt.Errorf("kernel descriptor %q: %d constant banks, at most %d", path, len(d.Cmem)+1, compute.MaxConstBanks)
	}
	return d, nil
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// build allocates the kernel's memory from vas and returns the launch
// descriptor.
func (d *kernelDesc) build(vas compute.AddressSpace, mpCount uint64) (*compute.Kernel, error) {
	k := &compute.Kernel{
		CodeSize:      d.CodeSize,
		CodePC:        d.CodePC,
		LmemSize:      d.LmemSize,
		LmemSizeNeg:   d.LmemSizeNeg,
		LmemBase:      defaultLmemBase,
		WarpStackSize: d.WarpStackSize,
		SmemBase:      defaultSmemBase,
		SmemSize:      d.SmemSize,
		RegCount:      d.RegCount,
		BarCount:      d.BarCount,
		GridID:        d.GridID,
		Grid:          d.Grid,
		Block:         d.Block,
		Params:        make([]byte, 4*len(d.Params)),
	}
	if d.LmemBase != nil {
		k.LmemBase = *d.LmemBase
	}
	if d.SmemBase != nil {
		k.SmemBase = *d.SmemBase
	}
	for i, p := range d.Params {
		binary.LittleEndian.PutUint32(k.Params[i*4:], p)
	}

	code, err := vas.Alloc(uint64(d.CodeSize), compute.PlacementDevice)
	if err != nil {
		return nil, fmt.Errorf("allocating code: %w", err)
	}
	copy(code.Map, d.code)
	k.CodeAddr = code.Addr

	k.Cmem = make([]compute.ConstBank, len(d.Cmem)+1)
	if len(k.Params) > 0 {
		size := alignUp(uint64(len(k.Params)), cmemAlign)
		b, err := vas.Alloc(size, compute.PlacementDevice)
		if err != nil {
			return nil, fmt.Errorf("allocating constant bank 0: %w", err)
		}
		k.Cmem[0] = compute.ConstBank{Addr: b.Addr, Size: uint32(size)}
	}
	for i, size := range d.Cmem {
		if size == 0 {
			continue
		}
		size := alignUp(uint64(size), cmemAlign)
		b, err := vas.Alloc(size, compute.PlacementDevice)
		if err != nil {
			return nil, fmt.Errorf("allocating constant bank %d: %w", i+1, err)
		}
		k.Cmem[i+1] = compute.ConstBank{Addr: b.Addr, Size: uint32(size)}
	}

	if perThread := uint64(d.LmemSize) + uint64(d.LmemSizeNeg); perThread != 0 {
		k.WarpLmemSize = uint32(alignUp(perThread*warpSize, 0x10))
		k.LmemSizeTotal = alignUp(uint64(k.WarpLmemSize)*warpsPerMP*mpCount, 0x20000)
		b, err := vas.Alloc(k.LmemSizeTotal, compute.PlacementDevice)
		if err != nil {
			return nil, fmt.Errorf("allocating local memory: %w", err)
		}
		k.LmemAddr = b.Addr
	}
	return k, nil
}
