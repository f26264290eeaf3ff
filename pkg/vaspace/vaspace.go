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

// Package vaspace implements a software device address space.
//
// Allocations are placed first-fit in a fixed virtual address range. Every
// block, whatever its placement, is backed by an anonymous host mapping so
// that callers can inspect and fill it without a device.
package vaspace

import (
	"fmt"
	"sync"

	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/log"
	"github.com/google/btree"
	"golang.org/x/sys/unix"
)

// PageSize is the allocation granularity.
const PageSize = 0x1000

// btreeDegree is the degree of the region tree.
const btreeDegree = 8

type region struct {
	start, end uint64
	block      *compute.Block
}

func regionLess(a, b *region) bool {
	return a.start < b.start
}

// Space is a device virtual address range.
//
// Space is thread-safe.
type Space struct {
	start, end uint64

	mu sync.Mutex
	// +checklocks:mu
	regions *btree.BTreeG[*region]
	// +checklocks:mu
	used uint64
}

var _ compute.AddressSpace = (*Space)(nil)

// New returns a space covering [start, start+size). Both must be page
// aligned.
func New(start, size uint64) (*Space, error) {
	if start%PageSize != 0 || size%PageSize != 0 || size == 0 || start+size < start {
		return nil, fmt.Errorf("address range [%#x, +%#x) is not page aligned or wraps: %w", start, size, compute.ErrInvariantViolation)
	}
	return &Space{
		start:   start,
		end:     start + size,
		regions: btree.NewG(btreeDegree, regionLess),
	}, nil
}

// Alloc implements compute.AddressSpace.Alloc.
func (s *Space) Alloc(size uint64, p compute.Placement) (*compute.Block, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero-sized allocation: %w", compute.ErrInvariantViolation)
	}
	length := (size + PageSize - 1) &^ (PageSize - 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.findLocked(length)
	if !ok {
		return nil, fmt.Errorf("no %#x byte hole in [%#x, %#x), %#x bytes in use: %w", length, s.start, s.end, s.used, compute.ErrOutOfMemory)
	}
	mem, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes: %v: %w", length, err, compute.ErrOutOfMemory)
	}
	b := &compute.Block{
		Addr:      addr,
		Size:      size,
		Placement: p,
		Map:       mem[:size],
	}
	s.regions.ReplaceOrInsert(&region{start: addr, end: addr + length, block: b})
	s.used += length
	log.Debugf("vaspace: allocated %#x bytes (%s) at %#x", size, p, addr)
	return b, nil
}

// findLocked returns the lowest address of a hole of length bytes.
//
// Preconditions: s.mu must be locked.
func (s *Space) findLocked(length uint64) (uint64, bool) {
	cursor := s.start
	found := false
	s.regions.Ascend(func(r *region) bool {
		if r.start-cursor >= length {
			found = true
			return false
		}
		cursor = r.end
		return true
	})
	if found || s.end-cursor >= length {
		return cursor, true
	}
	return 0, false
}

// Free implements compute.AddressSpace.Free.
func (s *Space) Free(b *compute.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions.Get(&region{start: b.Addr})
	if !ok || r.block != b {
		panic(fmt.Sprintf("vaspace: free of unknown block at %#x", b.Addr))
	}
	s.regions.Delete(r)
	s.used -= r.end - r.start
	if err := unix.Munmap(b.Map[:r.end-r.start]); err != nil {
		log.Warningf("vaspace: unmapping block at %#x: %v", b.Addr, err)
	}
	b.Map = nil
}

// Lookup returns the block containing addr.
func (s *Space) Lookup(addr uint64) (*compute.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *region
	s.regions.DescendLessOrEqual(&region{start: addr}, func(r *region) bool {
		found = r
		return false
	})
	if found == nil || addr >= found.end {
		return nil, false
	}
	return found.block, true
}

// Used returns the number of bytes allocated, in whole pages.
func (s *Space) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Release frees every live block.
func (s *Space) Release() {
	var blocks []*compute.Block
	s.mu.Lock()
	s.regions.Ascend(func(r *region) bool {
		blocks = append(blocks, r.block)
		return true
	})
	s.mu.Unlock()
	for _, b := range blocks {
		s.Free(b)
	}
}
