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

package nvc0

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// The fence buffer is written by the device concurrently with these
// accesses.

func checkRange(b []byte, off uint64, size uint64) {
	if off+size > uint64(len(b)) || off%size != 0 {
		panic(fmt.Sprintf("fence access of %d bytes at %#x outside %#x byte mapping", size, off, len(b)))
	}
}

func loadUint32(b []byte, off uint64) uint32 {
	checkRange(b, off, 4)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[off])))
}

func storeUint32(b []byte, off uint64, v uint32) {
	checkRange(b, off, 4)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[off])), v)
}

func loadUint64(b []byte, off uint64) uint64 {
	checkRange(b, off, 8)
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[off])))
}
