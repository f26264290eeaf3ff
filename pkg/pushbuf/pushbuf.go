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

// Package pushbuf encodes method packets into a command ring.
//
// An Encoder accumulates packets in a local buffer. Nothing reaches the
// transport until Submit, which hands over every buffered word in order and
// then rings the doorbell exactly once.
//
// Encoding mistakes (too many arguments, a header with out-of-range fields,
// buffer overflow) are programming errors and panic. Transport failures are
// returned by Submit.
package pushbuf

import (
	"fmt"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/metric"
)

// Transport accepts ring words and notifies the consumer.
type Transport interface {
	// Append places one word in the ring.
	Append(word uint32) error

	// Doorbell publishes every word appended so far.
	Doorbell() error
}

// Reserver is implemented by transports with bounded space. Submit calls
// Reserve before appending a batch so that a batch which does not fit
// leaves nothing behind.
type Reserver interface {
	// Reserve returns an error if n words cannot be appended.
	Reserve(n int) error
}

// DefaultCapacity is the number of words an Encoder buffers by default. It
// covers a launch uploading the largest parameter packet.
const DefaultCapacity = 0x4000

// Encoder builds method packets for a single channel.
//
// Encoder is not thread-safe.
type Encoder struct {
	t     Transport
	words []uint32

	// pending is the number of arguments still owed to the last header.
	pending int

	// subch is the subchannel of the last header, for accounting.
	subch nvgpu.Subchannel

	// submitted counts words handed to the transport since creation.
	submitted uint64
}

// NewEncoder returns an Encoder that buffers up to capacity words before
// a submit is required.
func NewEncoder(t Transport, capacity int) *Encoder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Encoder{
		t:     t,
		words: make([]uint32, 0, capacity),
	}
}

// BeginMethod starts an incrementing packet: count arguments written to
// method, method+4, and so on.
func (e *Encoder) BeginMethod(subch nvgpu.Subchannel, method uint32, count int) {
	e.begin(nvgpu.SecOpIncMethod, subch, method, count)
}

// BeginConstMethod starts a non-incrementing packet: count arguments all
// written to method.
func (e *Encoder) BeginConstMethod(subch nvgpu.Subchannel, method uint32, count int) {
	e.begin(nvgpu.SecOpNonIncMethod, subch, method, count)
}

func (e *Encoder) begin(secop uint32, subch nvgpu.Subchannel, method uint32, count int) {
	if e.pending != 0 {
		panic(fmt.Sprintf("pushbuf: new packet with %d arguments still pending", e.pending))
	}
	if subch > nvgpu.MaxSubchannel {
		panic(fmt.Sprintf("pushbuf: subchannel %d out of range", subch))
	}
	if method > nvgpu.MaxMethodAddr || method&3 != 0 {
		panic(fmt.Sprintf("pushbuf: bad method address %#x", method))
	}
	if count < 0 || count > nvgpu.MaxMethodCount {
		panic(fmt.Sprintf("pushbuf: bad method count %d", count))
	}
	var hdr uint32
	if secop == nvgpu.SecOpIncMethod {
		hdr = nvgpu.IncMethodHeader(subch, method, count)
	} else {
		hdr = nvgpu.NonIncMethodHeader(subch, method, count)
	}
	e.push(hdr)
	e.pending = count
	e.subch = subch
	metric.PushbufPackets.WithLabelValues(subch.String()).Inc()
	metric.PushbufWords.WithLabelValues(subch.String()).Add(float64(count + 1))
}

// Out appends one argument to the current packet.
func (e *Encoder) Out(word uint32) {
	if e.pending == 0 {
		panic("pushbuf: argument without a packet")
	}
	e.push(word)
	e.pending--
}

// OutAddr appends a 64-bit address as two arguments, high word first.
func (e *Encoder) OutAddr(addr uint64) {
	e.Out(nvgpu.AddrHigh(addr))
	e.Out(nvgpu.AddrLow(addr))
}

// OutZero appends a raw zero word outside of any packet. The ring treats it
// as a no-op.
func (e *Encoder) OutZero() {
	if e.pending != 0 {
		panic("pushbuf: padding inside a packet")
	}
	e.push(0)
}

func (e *Encoder) push(w uint32) {
	if len(e.words) == cap(e.words) {
		panic(fmt.Sprintf("pushbuf: buffer overflow at %d words", cap(e.words)))
	}
	e.words = append(e.words, w)
}

// Pending returns the number of buffered words not yet submitted.
func (e *Encoder) Pending() int {
	return len(e.words)
}

// Submitted returns the number of words handed to the transport.
func (e *Encoder) Submitted() uint64 {
	return e.submitted
}

// Discard drops every buffered word, including a partial packet.
func (e *Encoder) Discard() {
	e.words = e.words[:0]
	e.pending = 0
}

// Submit hands the buffered words to the transport in order and rings the
// doorbell once. The buffer is empty afterwards even if the transport
// fails. If the transport is a Reserver, a batch it has no room for is
// rejected before any word is appended.
func (e *Encoder) Submit() error {
	if e.pending != 0 {
		panic(fmt.Sprintf("pushbuf: submit with %d arguments still pending", e.pending))
	}
	words := e.words
	e.words = e.words[:0]
	if r, ok := e.t.(Reserver); ok {
		if err := r.Reserve(len(words)); err != nil {
			metric.PushbufSubmitErrors.Inc()
			return fmt.Errorf("reserving %d words: %w", len(words), err)
		}
	}
	for i, w := range words {
		if err := e.t.Append(w); err != nil {
			metric.PushbufSubmitErrors.Inc()
			return fmt.Errorf("appending word %d of %d: %w", i, len(words), err)
		}
		e.submitted++
	}
	if err := e.t.Doorbell(); err != nil {
		metric.PushbufSubmitErrors.Inc()
		return fmt.Errorf("ringing doorbell: %w", err)
	}
	metric.PushbufSubmits.Inc()
	if log.IsLogging(log.Debug) {
		log.Debugf("pushbuf: submitted %d words", len(words))
	}
	return nil
}
