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

package computetest

import (
	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/pushbuf"
)

var (
	gpcCount = uint32(nvgpu.NV_PGRAPH_FECS_GPC_COUNT)
)

func tpcCount(gpc uint32) uint32 {
	return nvgpu.GPCRegister(gpc, nvgpu.GPCTPCCount)
}

// Inc returns an incrementing packet, for building expected streams.
func Inc(subch nvgpu.Subchannel, method uint32, args ...uint32) pushbuf.Packet {
	return pushbuf.Packet{Subchannel: subch, Method: method, Args: args}
}

// Const returns a non-incrementing packet.
func Const(subch nvgpu.Subchannel, method uint32, args ...uint32) pushbuf.Packet {
	return pushbuf.Packet{Subchannel: subch, Method: method, NonIncrementing: true, Args: args}
}

// Compute returns an incrementing compute packet.
func Compute(method uint32, args ...uint32) pushbuf.Packet {
	return Inc(nvgpu.SubchCompute, method, args...)
}

// Find returns the first packet on subch at method, and whether one was
// found.
func Find(pkts []pushbuf.Packet, subch nvgpu.Subchannel, method uint32) (pushbuf.Packet, bool) {
	for _, p := range pkts {
		if !p.Padding && p.Subchannel == subch && p.Method == method {
			return p, true
		}
	}
	return pushbuf.Packet{}, false
}

// Zeros returns n zero words.
func Zeros(n int) []uint32 {
	return make([]uint32, n)
}
