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

package pushbuf

import (
	"fmt"
	"strings"

	"gdev.dev/gdev/pkg/abi/nvgpu"
)

// Packet is one decoded method packet.
type Packet struct {
	Subchannel      nvgpu.Subchannel
	Method          uint32
	NonIncrementing bool
	Args            []uint32

	// Padding is set for a zero word found between packets. Other fields
	// are zero.
	Padding bool
}

// MethodAt returns the method address that receives Args[i].
func (p *Packet) MethodAt(i int) uint32 {
	if p.NonIncrementing {
		return p.Method
	}
	return p.Method + uint32(i)*4
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	if p.Padding {
		return "pad"
	}
	var b strings.Builder
	kind := "inc"
	if p.NonIncrementing {
		kind = "const"
	}
	fmt.Fprintf(&b, "%s %s %#06x [%d]", p.Subchannel, kind, p.Method, len(p.Args))
	for _, a := range p.Args {
		fmt.Fprintf(&b, " %#x", a)
	}
	return b.String()
}

// Decode parses a word stream produced by an Encoder.
func Decode(words []uint32) ([]Packet, error) {
	var pkts []Packet
	for i := 0; i < len(words); {
		w := words[i]
		if w == 0 {
			pkts = append(pkts, Packet{Padding: true})
			i++
			continue
		}
		secop, subch, method, count := nvgpu.ParseHeader(w)
		if secop != nvgpu.SecOpIncMethod && secop != nvgpu.SecOpNonIncMethod {
			return pkts, fmt.Errorf("word %d: unknown header opcode %d in %#08x", i, secop, w)
		}
		if i+1+count > len(words) {
			return pkts, fmt.Errorf("word %d: packet wants %d arguments, only %d left", i, count, len(words)-i-1)
		}
		args := make([]uint32, count)
		copy(args, words[i+1:i+1+count])
		pkts = append(pkts, Packet{
			Subchannel:      subch,
			Method:          method,
			NonIncrementing: secop == nvgpu.SecOpNonIncMethod,
			Args:            args,
		})
		i += 1 + count
	}
	return pkts, nil
}
