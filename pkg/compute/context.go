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

package compute

import (
	"fmt"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/cleanup"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/pushbuf"
)

// NotifierSize is the size of a context's notifier block.
const NotifierSize = 0x1000

// ContextOptions holds arguments to NewContext.
type ContextOptions struct {
	// Channel is the channel id, used to tag notifier writes.
	Channel uint32

	// Debug enables breakpoint arming at Init and trap handler
	// installation at Launch.
	Debug bool

	// RingWords is the encoder capacity in words. Zero selects
	// pushbuf.DefaultCapacity.
	RingWords int
}

// Context is one command stream bound to an address space.
//
// Context is not thread-safe.
type Context struct {
	// Device is the device the context runs on.
	Device *Device

	// VAS is the address space blocks are allocated from.
	VAS AddressSpace

	// Channel is the channel id.
	Channel uint32

	// Fence holds FenceCount query records. It is host mapped.
	Fence *Block

	// Notify is the notifier block.
	Notify *Block

	// Pushbuf encodes packets into the channel's ring.
	Pushbuf *pushbuf.Encoder

	// Debug is set when debugging support is enabled for the context.
	Debug bool

	// DebugHandler is the installed trap handler block, or nil.
	DebugHandler *Block

	// DebugCodeAddr is the code address the trap handler displacement
	// was last computed against.
	DebugCodeAddr uint64

	// Bound records the object class bound on each subchannel by Init.
	Bound [nvgpu.MaxSubchannel + 1]uint32
}

// NewContext allocates the fence and notifier blocks for a new context on
// dev. Commands are delivered to t.
func NewContext(dev *Device, vas AddressSpace, t pushbuf.Transport, opts ContextOptions) (*Context, error) {
	fence, err := vas.Alloc(nvgpu.FenceBufferSize, PlacementHost)
	if err != nil {
		return nil, fmt.Errorf("allocating fence buffer: %w", err)
	}
	cu := cleanup.Make(func() { vas.Free(fence) })
	defer cu.Clean()
	if uint64(len(fence.Map)) < nvgpu.FenceBufferSize {
		return nil, fmt.Errorf("fence buffer host mapping is %d bytes, want %d: %w", len(fence.Map), nvgpu.FenceBufferSize, ErrInvariantViolation)
	}

	notify, err := vas.Alloc(NotifierSize, PlacementHost)
	if err != nil {
		return nil, fmt.Errorf("allocating notifier: %w", err)
	}
	cu.Add(func() { vas.Free(notify) })

	ctx := &Context{
		Device:  dev,
		VAS:     vas,
		Channel: opts.Channel,
		Fence:   fence,
		Notify:  notify,
		Pushbuf: pushbuf.NewEncoder(t, opts.RingWords),
		Debug:   opts.Debug,
	}
	cu.Release()
	log.Debugf("Context channel %d: fence %#x, notifier %#x, debug: %t", ctx.Channel, fence.Addr, notify.Addr, ctx.Debug)
	return ctx, nil
}

// Close releases every block owned by the context, including the trap
// handler.
func (c *Context) Close() {
	if c.DebugHandler != nil {
		c.VAS.Free(c.DebugHandler)
		c.DebugHandler = nil
	}
	if c.Notify != nil {
		c.VAS.Free(c.Notify)
		c.Notify = nil
	}
	if c.Fence != nil {
		c.VAS.Free(c.Fence)
		c.Fence = nil
	}
}

// Engine returns the device's engine.
func (c *Context) Engine() Engine {
	return c.Device.Engine
}
