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

package mmio

import (
	"sync"
)

// Write is one logged register write.
type Write struct {
	Index  int
	Offset uint32
	Value  uint32
}

type regKey struct {
	index  int
	offset uint32
}

// Sparse is an in-memory register file. Registers never written read as
// zero. Every write is logged.
//
// Sparse is thread-safe.
type Sparse struct {
	mu     sync.Mutex
	regs   map[regKey]uint32
	writes []Write
}

// NewSparse returns an empty register file.
func NewSparse() *Sparse {
	return &Sparse{regs: make(map[regKey]uint32)}
}

// Set stores value without logging a write. It is used to model
// hardware-owned registers.
func (s *Sparse) Set(index int, offset uint32, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[regKey{index, offset}] = value
}

// Read32 implements compute.RegisterFile.Read32.
func (s *Sparse) Read32(index int, offset uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[regKey{index, offset}]
}

// Write32 implements compute.RegisterFile.Write32.
func (s *Sparse) Write32(index int, offset uint32, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[regKey{index, offset}] = value
	s.writes = append(s.writes, Write{Index: index, Offset: offset, Value: value})
}

// Writes returns a copy of the write log.
func (s *Sparse) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// ResetWrites clears the write log.
func (s *Sparse) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}
