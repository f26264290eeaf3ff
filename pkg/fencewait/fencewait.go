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

// Package fencewait waits for fences written through a compute.Engine.
//
// The engine only peeks at fence slots. Tracker hands out sequence numbers,
// arms slots, and polls them with exponential backoff.
package fencewait

import (
	"context"
	"fmt"
	"time"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/errors"
	"gdev.dev/gdev/pkg/log"
	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by Wait when a fence is not reached in time.
var ErrTimeout = errors.New(unix.ETIMEDOUT, "fence not reached")

// Options configures polling.
type Options struct {
	// InitialInterval is the first poll delay.
	InitialInterval time.Duration

	// MaxInterval caps the poll delay.
	MaxInterval time.Duration

	// Timeout bounds the total wait. Zero means no bound other than the
	// context.
	Timeout time.Duration
}

// DefaultOptions returns the default polling options.
func DefaultOptions() Options {
	return Options{
		InitialInterval: 10 * time.Microsecond,
		MaxInterval:     10 * time.Millisecond,
		Timeout:         10 * time.Second,
	}
}

// Tracker allocates fence sequences for one context.
//
// Tracker is not thread-safe, like the context it wraps.
type Tracker struct {
	ctx  *compute.Context
	opts Options
	next uint32
}

// NewTracker returns a tracker issuing sequences from 0.
func NewTracker(ctx *compute.Context, opts Options) *Tracker {
	return &Tracker{ctx: ctx, opts: opts}
}

// Next returns the sequence the next Arm will use.
func (t *Tracker) Next() uint32 {
	return t.next
}

// Arm resets the slot of a fresh sequence and makes the engine on subch
// store it on completion of the work submitted so far.
func (t *Tracker) Arm(subch nvgpu.Subchannel) (uint32, error) {
	seq := t.next
	eng := t.ctx.Engine()
	eng.FenceReset(t.ctx, seq)
	if err := eng.FenceWrite(t.ctx, subch, seq); err != nil {
		return 0, err
	}
	t.next++
	// The sentinel value cannot be told apart from a reset slot.
	if t.next == nvgpu.FenceUnset {
		t.next = 0
	}
	return seq, nil
}

// Done returns true if the fence for seq has been reached.
func (t *Tracker) Done(seq uint32) bool {
	return t.ctx.Engine().FenceRead(t.ctx, seq) == seq
}

// Wait polls until the fence for seq is reached, ctx is done, or the
// timeout expires.
func (t *Tracker) Wait(ctx context.Context, seq uint32) error {
	if t.Done(seq) {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.InitialInterval
	b.MaxInterval = t.opts.MaxInterval
	b.MaxElapsedTime = t.opts.Timeout

	polls := 0
	op := func() error {
		polls++
		if t.Done(seq) {
			return nil
		}
		return fmt.Errorf("fence %d holds %#x", seq, t.ctx.Engine().FenceRead(t.ctx, seq))
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		log.Debugf("fencewait: sequence %d reached after %d polls", seq, polls)
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return fmt.Errorf("%v: %w", err, ErrTimeout)
}
