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

package gpfifo

import (
	"errors"
	"testing"

	"gdev.dev/gdev/pkg/abi/nvgpu"
	"gdev.dev/gdev/pkg/pushbuf"
	"github.com/google/go-cmp/cmp"
)

func TestNewSize(t *testing.T) {
	for _, size := range []int{0, 3, 100, -4} {
		if _, err := New(size, nil); err == nil {
			t.Errorf("New(%d) succeeded", size)
		}
	}
}

func TestPublishOnDoorbell(t *testing.T) {
	var kicks []uint32
	r, err := New(8, func(put uint32) { kicks = append(kicks, put) })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	e := pushbuf.NewEncoder(r, 8)
	e.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_NOP, 1)
	e.Out(42)
	if len(r.Peek()) != 0 {
		t.Fatalf("words visible before submit")
	}
	if err := e.Submit(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	want := []uint32{nvgpu.IncMethodHeader(nvgpu.SubchCompute, nvgpu.NV90C0_NOP, 1), 42}
	if diff := cmp.Diff(want, r.Peek()); diff != "" {
		t.Errorf("published words mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{2}, kicks); diff != "" {
		t.Errorf("kicks mismatch (-want +got):\n%s", diff)
	}
}

func TestFullAndWrap(t *testing.T) {
	r, err := New(4, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := uint32(0); i < 4; i++ {
		if err := r.Append(i); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
	r.Doorbell()
	if err := r.Append(4); !errors.Is(err, ErrRingFull) {
		t.Fatalf("Append on full ring = %v, want %v", err, ErrRingFull)
	}
	r.Consume(3)
	for i := uint32(4); i < 7; i++ {
		if err := r.Append(i); err != nil {
			t.Fatalf("Append(%d) after consume failed: %v", i, err)
		}
	}
	r.Doorbell()
	if diff := cmp.Diff([]uint32{3, 4, 5, 6}, r.Peek()); diff != "" {
		t.Errorf("wrapped words mismatch (-want +got):\n%s", diff)
	}
	if r.Get() != 3 || r.Put() != 7 {
		t.Errorf("get/put = %d/%d, want 3/7", r.Get(), r.Put())
	}
}

func TestAppendFullDropsUnpublished(t *testing.T) {
	r, err := New(4, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r.Append(1)
	r.Doorbell()
	for i := uint32(2); i < 5; i++ {
		if err := r.Append(i); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}
	if err := r.Append(5); !errors.Is(err, ErrRingFull) {
		t.Fatalf("Append on full ring = %v, want %v", err, ErrRingFull)
	}
	r.Doorbell()
	if diff := cmp.Diff([]uint32{1}, r.Peek()); diff != "" {
		t.Errorf("published words mismatch (-want +got):\n%s", diff)
	}
}

func TestReserve(t *testing.T) {
	r, err := New(8, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, n := range []int{0, 1, 8} {
		if err := r.Reserve(n); err != nil {
			t.Errorf("Reserve(%d) on empty ring failed: %v", n, err)
		}
	}
	if err := r.Reserve(9); !errors.Is(err, ErrRingFull) {
		t.Errorf("Reserve(9) = %v, want %v", err, ErrRingFull)
	}
	for i := uint32(0); i < 6; i++ {
		r.Append(i)
	}
	r.Doorbell()
	if err := r.Reserve(3); !errors.Is(err, ErrRingFull) {
		t.Errorf("Reserve(3) with 2 free = %v, want %v", err, ErrRingFull)
	}
	r.Consume(6)
	if err := r.Reserve(8); err != nil {
		t.Errorf("Reserve(8) after consume failed: %v", err)
	}
}

// nopBatch encodes one NOP packet with n arguments starting at first.
func nopBatch(e *pushbuf.Encoder, n int, first uint32) {
	e.BeginMethod(nvgpu.SubchCompute, nvgpu.NV90C0_NOP, n)
	for i := 0; i < n; i++ {
		e.Out(first + uint32(i))
	}
}

func TestSubmitTooLargeLeavesRingClean(t *testing.T) {
	r, err := New(16, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	e := pushbuf.NewEncoder(r, 16)

	nopBatch(e, 9, 0x100)
	if err := e.Submit(); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	nopBatch(e, 9, 0x200)
	if err := e.Submit(); !errors.Is(err, ErrRingFull) {
		t.Fatalf("second Submit = %v, want %v", err, ErrRingFull)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending = %d after failed submit, want 0", e.Pending())
	}

	r.Consume(len(r.Peek()))
	nopBatch(e, 1, 0x300)
	if err := e.Submit(); err != nil {
		t.Fatalf("third Submit failed: %v", err)
	}
	words := r.Peek()
	want := []uint32{nvgpu.IncMethodHeader(nvgpu.SubchCompute, nvgpu.NV90C0_NOP, 1), 0x300}
	if diff := cmp.Diff(want, words); diff != "" {
		t.Errorf("published words mismatch (-want +got):\n%s", diff)
	}
	if _, err := pushbuf.Decode(words); err != nil {
		t.Errorf("Decode(%#x) failed: %v", words, err)
	}
	if got, want := e.Submitted(), uint64(12); got != want {
		t.Errorf("Submitted = %d, want %d", got, want)
	}
}

func TestOverConsume(t *testing.T) {
	r, err := New(4, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Consume past put did not panic")
		}
	}()
	r.Consume(1)
}
