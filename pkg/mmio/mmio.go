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

// Package mmio provides register files: a mapped PCI BAR0 resource for real
// hardware, and a sparse in-memory file for dry runs and tests.
package mmio

import (
	"fmt"
	"os"

	"gdev.dev/gdev/pkg/cleanup"
	"gdev.dev/gdev/pkg/log"
	"golang.org/x/sys/unix"
)

// BAR is a mapped register aperture of one card.
type BAR struct {
	f   *os.File
	mem []byte
}

// OpenBAR maps the PCI resource file at path, typically
// /sys/bus/pci/devices/<slot>/resource0.
func OpenBAR(path string) (*BAR, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() { f.Close() })
	defer cu.Clean()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 || stat.Size()%4 != 0 {
		return nil, fmt.Errorf("%s: unexpected resource size %d", path, stat.Size())
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(stat.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	cu.Release()
	log.Infof("Mapped %s: %#x bytes", path, len(mem))
	return &BAR{f: f, mem: mem}, nil
}

// Size returns the size of the aperture in bytes.
func (b *BAR) Size() int {
	return len(b.mem)
}

// Close unmaps the aperture.
func (b *BAR) Close() error {
	err := unix.Munmap(b.mem)
	b.mem = nil
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *BAR) check(offset uint32) {
	if offset&3 != 0 || uint64(offset)+4 > uint64(len(b.mem)) {
		panic(fmt.Sprintf("mmio: register %#x outside %#x byte aperture", offset, len(b.mem)))
	}
}

// Cards is a register file over the BAR0 apertures of several cards,
// indexed by card.
type Cards []*BAR

// Read32 implements compute.RegisterFile.Read32.
func (c Cards) Read32(index int, offset uint32) uint32 {
	return c[index].Read32(offset)
}

// Write32 implements compute.RegisterFile.Write32.
func (c Cards) Write32(index int, offset uint32, value uint32) {
	c[index].Write32(offset, value)
}
