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

package vaspace

import (
	"errors"
	"testing"

	"gdev.dev/gdev/pkg/compute"
	"github.com/google/go-cmp/cmp"
)

func TestFirstFit(t *testing.T) {
	s, err := New(0x10_0000, 0x10000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Release()

	var addrs []uint64
	var blocks []*compute.Block
	for _, size := range []uint64{0x1000, 0x2000, 0x10, 0x1000} {
		b, err := s.Alloc(size, compute.PlacementDevice)
		if err != nil {
			t.Fatalf("Alloc(%#x) failed: %v", size, err)
		}
		if uint64(len(b.Map)) != size {
			t.Errorf("Alloc(%#x) mapped %#x bytes", size, len(b.Map))
		}
		addrs = append(addrs, b.Addr)
		blocks = append(blocks, b)
	}
	if diff := cmp.Diff([]uint64{0x10_0000, 0x10_1000, 0x10_3000, 0x10_4000}, addrs); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}

	// The freed hole is reused, but only by what fits.
	s.Free(blocks[1])
	big, err := s.Alloc(0x3000, compute.PlacementHost)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if big.Addr != 0x10_5000 {
		t.Errorf("3-page block at %#x, want 0x105000", big.Addr)
	}
	small, err := s.Alloc(0x1000, compute.PlacementHost)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if small.Addr != 0x10_1000 {
		t.Errorf("1-page block at %#x, want 0x101000", small.Addr)
	}
	if got, want := s.Used(), uint64(0x7000); got != want {
		t.Errorf("Used = %#x, want %#x", got, want)
	}

	if b, ok := s.Lookup(0x10_5800); !ok || b != big {
		t.Errorf("Lookup(0x105800) = %v, %t; want the 3-page block", b, ok)
	}
	if _, ok := s.Lookup(0x10_2000); ok {
		t.Errorf("Lookup in a hole succeeded")
	}
}

func TestExhaustion(t *testing.T) {
	s, err := New(0, 0x2000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Release()
	if _, err := s.Alloc(0x2000, compute.PlacementDevice); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if _, err := s.Alloc(1, compute.PlacementDevice); !errors.Is(err, compute.ErrOutOfMemory) {
		t.Errorf("Alloc on full space = %v, want %v", err, compute.ErrOutOfMemory)
	}
}

func TestHostMapWritable(t *testing.T) {
	s, err := New(0x1000, 0x1000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := s.Alloc(0x1000, compute.PlacementHost)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	b.Map[0xfff] = 0xaa
	s.Free(b)
	if b.Map != nil || s.Used() != 0 {
		t.Errorf("Free left map %v and %#x bytes used", b.Map != nil, s.Used())
	}
}

func TestNewRejectsUnaligned(t *testing.T) {
	if _, err := New(0x10, 0x1000); !errors.Is(err, compute.ErrInvariantViolation) {
		t.Errorf("New(0x10, 0x1000) = %v, want %v", err, compute.ErrInvariantViolation)
	}
}
