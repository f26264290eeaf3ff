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

// Package nvgpu contains the hardware interface of nvc0 (Fermi) GPUs as seen
// by the command-submission engine: object classes, push-buffer method
// encoding, method addresses, fence records and the MMIO registers touched
// by debug support.
//
// Everything in this package is part of the wire contract with the GPU's
// command processor. None of these values are tunable.
package nvgpu

import "fmt"

// Class handles of the Fermi engines bound on subchannels.
const (
	FERMI_MEMORY_TO_MEMORY_FORMAT_A = 0x00009039
	FERMI_COMPUTE_A                 = 0x000090c0
	GF100_DMA_COPY                  = 0x000090b5
)

// Object words written to method 0 (SET_OBJECT) of a subchannel. Copy engines
// carry the engine instance in the bits above the class.
const (
	M2MFObject    = FERMI_MEMORY_TO_MEMORY_FORMAT_A
	ComputeObject = FERMI_COMPUTE_A
	PCOPY0Object  = 0x000490b5
	PCOPY1Object  = 0x000590b8
)

// Subchannel is a logical engine binding within a channel.
type Subchannel uint32

// Subchannel assignments.
const (
	SubchCompute Subchannel = 1
	SubchM2MF    Subchannel = 2
	SubchPCOPY0  Subchannel = 3
	SubchPCOPY1  Subchannel = 4
)

// String implements fmt.Stringer.
func (s Subchannel) String() string {
	switch s {
	case SubchCompute:
		return "compute"
	case SubchM2MF:
		return "m2mf"
	case SubchPCOPY0:
		return "pcopy0"
	case SubchPCOPY1:
		return "pcopy1"
	default:
		return fmt.Sprintf("subch%d", uint32(s))
	}
}
