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

// Package compute defines the device and context model shared by the GPU
// compute engines, and the operations every engine generation implements.
//
// A Device is attached once per GPU. Attach selects the engine for the
// device's chipset from the generations registered with Register; engines
// are never chosen again after that. Every Context refers to its Device and
// reaches the engine through it.
package compute

import (
	"fmt"
	"sync"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/log"
)

// Engine encodes commands for one hardware generation.
//
// Operations other than Init assume Init has already run on the Context.
// Errors are returned before any packet of the failing operation reaches
// the ring.
type Engine interface {
	// Launch encodes and submits a kernel launch. It may rewrite the
	// first words of k.Params.
	Launch(ctx *Context, k *Kernel) error

	// CopyNow encodes and submits a copy on the synchronous copy engine.
	CopyNow(ctx *Context, dst, src, size uint64) error

	// CopyAsync encodes and submits a copy on the first asynchronous copy
	// engine.
	CopyAsync(ctx *Context, dst, src, size uint64) error

	// FenceRead returns the sequence stored in the slot for seq.
	FenceRead(ctx *Context, seq uint32) uint32

	// FenceTimestamp returns the timestamp stored in the slot for seq.
	FenceTimestamp(ctx *Context, seq uint32) uint64

	// FenceWrite encodes and submits a packet that makes the engine bound
	// to subch store seq in its slot on completion.
	FenceWrite(ctx *Context, subch nvgpu.Subchannel, seq uint32) error

	// FenceReset stores the unset sentinel in the slot for seq.
	FenceReset(ctx *Context, seq uint32)

	// MemoryBarrier encodes and submits a compute memory barrier.
	MemoryBarrier(ctx *Context) error

	// NotifyInterrupt encodes and submits a notifier write that wakes
	// waiters on the channel.
	NotifyInterrupt(ctx *Context) error

	// Init performs one-time hardware setup for ctx.
	Init(ctx *Context) error
}

// Generation names a family of chipsets sharing one command encoding.
type Generation string

// GenerationNVC0 covers the GF100 (Fermi) family.
const GenerationNVC0 Generation = "nvc0"

// GenerationOf returns the generation of chipset.
func GenerationOf(chipset uint32) (Generation, bool) {
	switch chipset & 0xf0 {
	case 0xc0, 0xd0:
		return GenerationNVC0, true
	default:
		return "", false
	}
}

// Constructor builds the engine of a generation for dev. It may inspect
// dev's capabilities but must not touch hardware.
type Constructor func(dev *Device) (Engine, error)

var (
	generationsMu sync.Mutex
	generations   = make(map[Generation]Constructor)
)

// Register makes an engine generation available to Attach. It is intended
// to be called from init functions.
func Register(gen Generation, cons Constructor) {
	generationsMu.Lock()
	defer generationsMu.Unlock()
	if _, ok := generations[gen]; ok {
		panic(fmt.Sprintf("generation %q registered twice", gen))
	}
	generations[gen] = cons
}

func lookup(gen Generation) (Constructor, bool) {
	generationsMu.Lock()
	defer generationsMu.Unlock()
	cons, ok := generations[gen]
	return cons, ok
}

// DeviceOptions holds arguments to Attach.
type DeviceOptions struct {
	// Chipset is the chipset id, e.g. 0xc0 for GF100.
	Chipset uint32

	// Index identifies the card to Regs.
	Index int

	// Regs provides MMIO register access. It is used only for debug
	// support and may be nil when debugging is never enabled.
	Regs RegisterFile

	// Query answers device queries at initialization.
	Query Querier

	// Privileged is set when the driver controls kernel-privileged
	// hardware state.
	Privileged bool

	// ExplicitCopyBind is set when the engine revision requires the
	// asynchronous copy engines to be bound explicitly.
	ExplicitCopyBind bool

	// CopyEngines is the number of asynchronous copy engines, 0 to 2.
	CopyEngines int

	// EngineConfig is passed to the generation's constructor. Its type is
	// defined by the generation; nil selects defaults.
	EngineConfig any
}

// Device is an attached GPU.
type Device struct {
	DeviceOptions

	// Engine encodes commands for this device. It is immutable after
	// Attach.
	Engine Engine

	// Generation is the generation Engine implements.
	Generation Generation
}

// Attach selects the engine for opts.Chipset and returns the device.
func Attach(opts DeviceOptions) (*Device, error) {
	gen, ok := GenerationOf(opts.Chipset)
	if !ok {
		return nil, fmt.Errorf("chipset %#x: %w", opts.Chipset, ErrUnsupportedEngine)
	}
	cons, ok := lookup(gen)
	if !ok {
		return nil, fmt.Errorf("generation %s not registered: %w", gen, ErrUnsupportedEngine)
	}
	if opts.CopyEngines < 0 || opts.CopyEngines > 2 {
		return nil, fmt.Errorf("%d copy engines: %w", opts.CopyEngines, ErrInvariantViolation)
	}
	dev := &Device{
		DeviceOptions: opts,
		Generation:    gen,
	}
	eng, err := cons(dev)
	if err != nil {
		return nil, fmt.Errorf("constructing %s engine: %w", gen, err)
	}
	dev.Engine = eng
	log.Infof("Attached chipset %#x (%s), privileged: %t, copy engines: %d", opts.Chipset, gen, opts.Privileged, opts.CopyEngines)
	return dev, nil
}

// HasSubchannel returns true if dev exposes an engine on subch.
func (d *Device) HasSubchannel(subch nvgpu.Subchannel) bool {
	switch subch {
	case nvgpu.SubchCompute, nvgpu.SubchM2MF:
		return true
	case nvgpu.SubchPCOPY0:
		return d.CopyEngines >= 1
	case nvgpu.SubchPCOPY1:
		return d.CopyEngines >= 2
	default:
		return false
	}
}
