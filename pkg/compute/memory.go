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

// Placement selects where an allocation is backed.
type Placement int

const (
	// PlacementDevice backs the block with device-resident memory.
	PlacementDevice Placement = iota

	// PlacementHost backs the block with host memory visible to the
	// device (DMA).
	PlacementHost
)

// String implements fmt.Stringer.
func (p Placement) String() string {
	switch p {
	case PlacementDevice:
		return "device"
	case PlacementHost:
		return "host"
	default:
		return "unknown"
	}
}

// Block is an allocation in a device address space.
type Block struct {
	// Addr is the device virtual address.
	Addr uint64

	// Size is the size in bytes.
	Size uint64

	// Placement is where the block is backed.
	Placement Placement

	// Map is the host mapping of the block, or nil if it is not mapped.
	Map []byte
}

// AddressSpace allocates memory in a device virtual address space.
type AddressSpace interface {
	// Alloc allocates size bytes. It returns an error wrapping
	// ErrOutOfMemory if the space is exhausted.
	Alloc(size uint64, p Placement) (*Block, error)

	// Free releases b.
	Free(b *Block)
}

// RegisterFile provides MMIO register access. index identifies the card.
type RegisterFile interface {
	Read32(index int, offset uint32) uint32
	Write32(index int, offset uint32, value uint32)
}

// QueryKind is a device query.
type QueryKind int

const (
	// QueryMPCount returns the number of multiprocessors.
	QueryMPCount QueryKind = iota
)

// Querier answers device queries.
type Querier interface {
	Query(kind QueryKind) (uint64, error)
}
