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
	"sync/atomic"
	"unsafe"
)

// Read32 reads the register at offset.
func (b *BAR) Read32(offset uint32) uint32 {
	b.check(offset)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b.mem[offset])))
}

// Write32 writes the register at offset.
func (b *BAR) Write32(offset uint32, value uint32) {
	b.check(offset)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.mem[offset])), value)
}
