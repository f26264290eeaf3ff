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
	"encoding/binary"
	"fmt"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/log"
	"gdev.dev/gdev/pkg/metric"
)

// prepareHandler makes sure ctx has a trap handler reachable from code at
// code. It touches registers and memory only, never the ring.
func (e *Engine) prepareHandler(ctx *compute.Context, code uint64) error {
	if e.dev.Regs == nil {
		return fmt.Errorf("debugging without register access: %w", compute.ErrUnsupportedEngine)
	}
	if h := ctx.DebugHandler; h != nil {
		if ctx.DebugCodeAddr == code {
			return nil
		}
		if !e.cfg.Handler.Accept(h.Addr, code) {
			return fmt.Errorf("trap handler at %#x unusable for code at %#x: %w", h.Addr, code, compute.ErrAllocationPolicy)
		}
		e.setHandlerDisplacement(ctx, h.Addr, code)
		return nil
	}

	h, err := e.allocHandler(ctx, code)
	if err != nil {
		return err
	}
	if len(h.Map) < len(nvgpu.TrapHandler)*4 {
		ctx.VAS.Free(h)
		return fmt.Errorf("trap handler block at %#x is not host mapped: %w", h.Addr, compute.ErrInvariantViolation)
	}
	for i, w := range nvgpu.TrapHandler {
		binary.LittleEndian.PutUint32(h.Map[i*4:], w)
	}
	ctx.DebugHandler = h
	e.setHandlerDisplacement(ctx, h.Addr, code)
	log.Infof("Installed trap handler for channel %d at %#x, code at %#x", ctx.Channel, h.Addr, code)
	return nil
}

// allocHandler allocates blocks until one satisfies the placement policy.
// Rejected blocks stay allocated until the search ends so that the address
// space cannot hand them out again.
func (e *Engine) allocHandler(ctx *compute.Context, code uint64) (*compute.Block, error) {
	var rejected []*compute.Block
	defer func() {
		for _, b := range rejected {
			ctx.VAS.Free(b)
		}
	}()

	p := e.cfg.Handler
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		b, err := ctx.VAS.Alloc(nvgpu.TrapHandlerSize, compute.PlacementDevice)
		if err != nil {
			return nil, fmt.Errorf("allocating trap handler block (attempt %d): %w", attempt, err)
		}
		if p.Accept(b.Addr, code) {
			metric.HandlerAllocAttempts.WithLabelValues("accepted").Inc()
			return b, nil
		}
		metric.HandlerAllocAttempts.WithLabelValues("rejected").Inc()
		log.Debugf("Trap handler candidate %#x rejected for code at %#x", b.Addr, code)
		rejected = append(rejected, b)
	}
	log.Warningf("No trap handler block accepted for code at %#x after %d attempts", code, p.MaxAttempts)
	return nil, fmt.Errorf("no trap handler block for code at %#x in %d attempts: %w", code, p.MaxAttempts, compute.ErrAllocationPolicy)
}

// setHandlerDisplacement points every MP's trap handler at handler.
func (e *Engine) setHandlerDisplacement(ctx *compute.Context, handler, code uint64) {
	disp := int32(handler - code)
	e.dev.Regs.Write32(e.dev.Index, nvgpu.MPBroadcastBase+nvgpu.MPTrapHandler, uint32(disp))
	ctx.DebugCodeAddr = code
}
