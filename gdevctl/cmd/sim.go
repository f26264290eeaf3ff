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

package cmd

import (
	"encoding/binary"
	"fmt"
	"time"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/gpfifo"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/pushbuf"
	"gdev.dev/gdev/pkg/vaspace"
)

// Method registers read by the simulator, relative to the ones the engine
// names.
const (
	m2mfPitchIn    = nvgpu.NV9039_OFFSET_IN_HIGH + 8
	m2mfPitchOut   = nvgpu.NV9039_OFFSET_IN_HIGH + 12
	m2mfLineLength = nvgpu.NV9039_OFFSET_IN_HIGH + 16
	m2mfLineCount  = nvgpu.NV9039_OFFSET_IN_HIGH + 20
	m2mfQuerySeq   = nvgpu.NV9039_QUERY_ADDRESS_HIGH + 8

	pcopyDstHigh  = nvgpu.NV90B5_SRC_ADDRESS_HIGH + 8
	pcopyPitchIn  = nvgpu.NV90B5_SRC_ADDRESS_HIGH + 16
	pcopyPitchOut = nvgpu.NV90B5_SRC_ADDRESS_HIGH + 20
	pcopyYCount   = nvgpu.NV90B5_XCNT + 4
	pcopyQuerySeq = nvgpu.NV90B5_QUERY_ADDRESS_HIGH + 8

	computeQuerySeq = nvgpu.NV90C0_QUERY_ADDRESS_HIGH + 8
)

// faultLogInterval bounds how often simulator faults are logged.
const faultLogInterval = time.Second

// simulator consumes a ring and carries out the memory effects of copies
// and fence writes against an address space. Kernels are not run.
type simulator struct {
	vas *vaspace.Space

	// warn reports command stream faults. A broken stream faults on
	// every packet, so it is rate limited.
	warn log.Logger

	// state holds the last value written to each method, per subchannel.
	state [8]map[uint32]uint32

	packets int
	copies  int
	fences  int
	faults  int
}

func newSimulator(vas *vaspace.Space) *simulator {
	return &simulator{
		vas:  vas,
		warn: log.BasicRateLimitedLogger(faultLogInterval),
	}
}

// drain consumes every published word of r.
func (s *simulator) drain(r *gpfifo.Ring) {
	words := r.Peek()
	r.Consume(len(words))
	pkts, err := pushbuf.Decode(words)
	if err != nil {
		s.warn.Warningf("sim: decoding %d words at get %#x: %v", len(words), r.Get(), err)
		s.faults++
		return
	}
	for i := range pkts {
		s.execute(&pkts[i])
	}
}

func (s *simulator) execute(p *pushbuf.Packet) {
	if p.Padding {
		return
	}
	s.packets++
	st := s.state[p.Subchannel]
	if st == nil {
		st = make(map[uint32]uint32)
		s.state[p.Subchannel] = st
	}
	for i, arg := range p.Args {
		m := p.MethodAt(i)
		st[m] = arg
		if err := s.trigger(p.Subchannel, m, st); err != nil {
			s.warn.Warningf("sim: %s method %#x: %v", p.Subchannel, m, err)
			s.faults++
		}
	}
}

// trigger performs the effect of writing method m, if any.
func (s *simulator) trigger(subch nvgpu.Subchannel, m uint32, st map[uint32]uint32) error {
	addr := func(high uint32) uint64 {
		return uint64(st[high])<<32 | uint64(st[high+4])
	}
	switch {
	case subch == nvgpu.SubchCompute && m == computeQuerySeq:
		return s.query(addr(nvgpu.NV90C0_QUERY_ADDRESS_HIGH), st[m])
	case subch == nvgpu.SubchM2MF && m == m2mfQuerySeq:
		return s.query(addr(nvgpu.NV9039_QUERY_ADDRESS_HIGH), st[m])
	case (subch == nvgpu.SubchPCOPY0 || subch == nvgpu.SubchPCOPY1) && m == pcopyQuerySeq:
		return s.query(addr(nvgpu.NV90B5_QUERY_ADDRESS_HIGH), st[m])
	case subch == nvgpu.SubchM2MF && m == nvgpu.NV9039_EXEC:
		s.copies++
		return s.copyRect(
			addr(nvgpu.NV9039_OFFSET_OUT_HIGH), addr(nvgpu.NV9039_OFFSET_IN_HIGH),
			st[m2mfPitchOut], st[m2mfPitchIn], st[m2mfLineLength], st[m2mfLineCount])
	case (subch == nvgpu.SubchPCOPY0 || subch == nvgpu.SubchPCOPY1) && m == nvgpu.NV90B5_EXEC:
		s.copies++
		return s.copyRect(
			addr(pcopyDstHigh), addr(nvgpu.NV90B5_SRC_ADDRESS_HIGH),
			st[pcopyPitchOut], st[pcopyPitchIn], st[nvgpu.NV90B5_XCNT], st[pcopyYCount])
	}
	return nil
}

// slice returns the host mapping of [addr, addr+size).
func (s *simulator) slice(addr, size uint64) ([]byte, error) {
	b, ok := s.vas.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("address %#x is not mapped", addr)
	}
	off := addr - b.Addr
	if off+size > uint64(len(b.Map)) {
		return nil, fmt.Errorf("range [%#x, +%#x) crosses the end of the block at %#x", addr, size, b.Addr)
	}
	return b.Map[off : off+size], nil
}

// query writes a completion record.
func (s *simulator) query(addr uint64, seq uint32) error {
	rec, err := s.slice(addr, nvgpu.SizeofQuery)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(rec[nvgpu.QueryTimestampOffset:], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(rec[nvgpu.QuerySequenceOffset:], seq)
	s.fences++
	return nil
}

// copyRect copies lines lines of length bytes.
func (s *simulator) copyRect(dst, src uint64, dstPitch, srcPitch, length, lines uint32) error {
	for l := uint64(0); l < uint64(lines); l++ {
		d, err := s.slice(dst+l*uint64(dstPitch), uint64(length))
		if err != nil {
			return err
		}
		sr, err := s.slice(src+l*uint64(srcPitch), uint64(length))
		if err != nil {
			return err
		}
		copy(d, sr)
	}
	return nil
}
