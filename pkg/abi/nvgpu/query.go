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

// Query is the record written by a QUERY method: the sequence value given
// to the method and the GPU timestamp at completion.
type Query struct {
	Sequence  uint32
	Pad       uint32
	Timestamp uint64
}

// Fence buffer layout.
const (
	SizeofQuery = 0x10

	// QuerySequenceOffset and QueryTimestampOffset are the byte offsets of
	// Query fields within a record.
	QuerySequenceOffset  = 0x0
	QueryTimestampOffset = 0x8

	// FenceBufferSize is the size of a context's fence buffer.
	FenceBufferSize = 0x10000

	// FenceCount is the number of fence slots in a fence buffer.
	FenceCount = FenceBufferSize / SizeofQuery

	// FenceUnset is the sequence value of a slot that has been reset and
	// not yet written by hardware.
	FenceUnset = ^uint32(0)
)

// FenceSlot returns the slot used by sequence seq.
func FenceSlot(seq uint32) uint32 {
	return seq % FenceCount
}

// FenceOffset returns the byte offset of seq's record in the fence buffer.
func FenceOffset(seq uint32) uint64 {
	return uint64(FenceSlot(seq)) * SizeofQuery
}
