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

// Push-buffer method headers. A header is followed by Count argument words.
//
//	31..29  SEC_OP
//	28..16  count
//	15..13  subchannel
//	12..0   method address >> 2
const (
	SecOpShift      = 29
	CountShift      = 16
	SubchShift      = 13
	MethodAddrShift = 2

	// SecOpIncMethod writes consecutive arguments to consecutive methods.
	SecOpIncMethod = 1
	// SecOpNonIncMethod writes every argument to the same method.
	SecOpNonIncMethod = 3

	MaxMethodCount = 0x1fff
	MaxSubchannel  = 7
	MaxMethodAddr  = 0x7ffc
)

// IncMethodHeader returns the header of an incrementing method.
func IncMethodHeader(subch Subchannel, method uint32, count int) uint32 {
	return methodHeader(SecOpIncMethod, subch, method, count)
}

// NonIncMethodHeader returns the header of a non-incrementing method.
func NonIncMethodHeader(subch Subchannel, method uint32, count int) uint32 {
	return methodHeader(SecOpNonIncMethod, subch, method, count)
}

func methodHeader(secop uint32, subch Subchannel, method uint32, count int) uint32 {
	return secop<<SecOpShift | uint32(count)<<CountShift | uint32(subch)<<SubchShift | method>>MethodAddrShift
}

// ParseHeader splits a header word into its fields.
func ParseHeader(w uint32) (secop uint32, subch Subchannel, method uint32, count int) {
	secop = w >> SecOpShift
	count = int(w>>CountShift) & MaxMethodCount
	subch = Subchannel(w>>SubchShift) & MaxSubchannel
	method = (w & 0x1fff) << MethodAddrShift
	return
}

// AddrHigh returns the high word of a 40-bit GPU virtual address.
func AddrHigh(addr uint64) uint32 { return uint32(addr >> 32) }

// AddrLow returns the low word of a GPU virtual address.
func AddrLow(addr uint64) uint32 { return uint32(addr) }
