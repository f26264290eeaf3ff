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

// Package gpfifo provides a memory-backed command ring that implements
// pushbuf.Transport.
//
// The producer side appends words and publishes them with Doorbell. The
// consumer side, standing in for the command processor, reads published
// words with Peek and retires them with Consume. One producer and one
// consumer may run concurrently.
package gpfifo

import (
	"fmt"
	"sync/atomic"

	"gdev.dev/gdev/pkg/errors"
	"gdev.dev/gdev/pkg/pushbuf"
	"golang.org/x/sys/unix"
)

// ErrRingFull is returned by Append and Reserve when the consumer has not
// retired enough words.
var ErrRingFull = errors.New(unix.ENOSPC, "command ring full")

// Ring is a single-producer single-consumer word ring.
type Ring struct {
	// ring holds the words. len(ring) is a power of 2.
	ring []uint32

	// mask is used whenever indexing into ring. It is always len(ring)-1.
	mask uint32

	// producer is the index past the last published word. Only the
	// producer updates it.
	producer atomic.Uint32

	// consumer is the index past the last retired word. Only the consumer
	// updates it.
	consumer atomic.Uint32

	// cachedProducer is the producer's private write index. Words between
	// producer and cachedProducer are written but not published.
	cachedProducer uint32

	// cachedConsumer is the producer's last view of consumer, plus
	// len(ring). See free.
	cachedConsumer uint32

	// kick is called by Doorbell with the new producer index.
	kick func(put uint32)
}

var (
	_ pushbuf.Transport = (*Ring)(nil)
	_ pushbuf.Reserver  = (*Ring)(nil)
)

// New returns a ring of size words. kick, if not nil, is called on every
// doorbell with the new put index.
func New(size int, kick func(put uint32)) (*Ring, error) {
	if size <= 0 || size&(size-1) != 0 || size > 1<<30 {
		return nil, fmt.Errorf("ring size %d is not a power of 2", size)
	}
	return &Ring{
		ring:           make([]uint32, size),
		mask:           uint32(size - 1),
		cachedConsumer: uint32(size),
		kick:           kick,
	}, nil
}

// Size returns the ring size in words.
func (r *Ring) Size() int {
	return len(r.ring)
}

// free returns the number of words the producer may write.
func (r *Ring) free() uint32 {
	// cachedConsumer is len(ring) ahead of the real consumer, so this
	// difference is the free space without adding len(ring).
	if available := r.cachedConsumer - r.cachedProducer; available > 0 {
		return available
	}
	r.cachedConsumer = r.consumer.Load() + uint32(len(r.ring))
	return r.cachedConsumer - r.cachedProducer
}

// Reserve implements pushbuf.Reserver.Reserve.
func (r *Ring) Reserve(n int) error {
	if n < 0 || uint64(n) > uint64(len(r.ring)) {
		return fmt.Errorf("%d words on a %d word ring: %w", n, len(r.ring), ErrRingFull)
	}
	if r.cachedConsumer-r.cachedProducer < uint32(n) {
		r.cachedConsumer = r.consumer.Load() + uint32(len(r.ring))
	}
	if free := r.cachedConsumer - r.cachedProducer; free < uint32(n) {
		return fmt.Errorf("%d words, %d free: %w", n, free, ErrRingFull)
	}
	return nil
}

// Append implements pushbuf.Transport.Append. If the ring is full, every
// word appended since the last doorbell is dropped.
func (r *Ring) Append(word uint32) error {
	if r.free() == 0 {
		r.cachedProducer = r.producer.Load()
		return ErrRingFull
	}
	r.ring[r.cachedProducer&r.mask] = word
	r.cachedProducer++
	return nil
}

// Doorbell implements pushbuf.Transport.Doorbell.
func (r *Ring) Doorbell() error {
	r.producer.Store(r.cachedProducer)
	if r.kick != nil {
		r.kick(r.cachedProducer)
	}
	return nil
}

// Peek returns the published words not yet consumed, in order. The
// returned slice is a copy.
func (r *Ring) Peek() []uint32 {
	get := r.consumer.Load()
	put := r.producer.Load()
	words := make([]uint32, 0, put-get)
	for i := get; i != put; i++ {
		words = append(words, r.ring[i&r.mask])
	}
	return words
}

// Consume retires n published words.
func (r *Ring) Consume(n int) {
	get := r.consumer.Load()
	if avail := r.producer.Load() - get; uint32(n) > avail {
		panic(fmt.Sprintf("gpfifo: consuming %d words, %d published", n, avail))
	}
	r.consumer.Store(get + uint32(n))
}

// Get returns the consumer index.
func (r *Ring) Get() uint32 {
	return r.consumer.Load()
}

// Put returns the published producer index.
func (r *Ring) Put() uint32 {
	return r.producer.Load()
}
