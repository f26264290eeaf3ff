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
	"encoding/binary"
	"io"
)

// Recorder is a Transport that keeps every word in memory. It is used by
// tests and dry runs.
type Recorder struct {
	// Words holds every appended word.
	Words []uint32

	// Doorbells holds len(Words) at each doorbell.
	Doorbells []int

	// Fail, if set, is returned by Append once len(Words) reaches FailAt.
	Fail   error
	FailAt int
}

// Append implements Transport.Append.
func (r *Recorder) Append(word uint32) error {
	if r.Fail != nil && len(r.Words) >= r.FailAt {
		return r.Fail
	}
	r.Words = append(r.Words, word)
	return nil
}

// Doorbell implements Transport.Doorbell.
func (r *Recorder) Doorbell() error {
	r.Doorbells = append(r.Doorbells, len(r.Words))
	return nil
}

// Packets decodes the recorded words.
func (r *Recorder) Packets() ([]Packet, error) {
	return Decode(r.Words)
}

// Reset forgets every recorded word and doorbell.
func (r *Recorder) Reset() {
	r.Words = r.Words[:0]
	r.Doorbells = r.Doorbells[:0]
}

// WriterTransport writes words to an io.Writer in little-endian order,
// which is the ring's in-memory layout.
type WriterTransport struct {
	W io.Writer

	buf [4]byte
}

// Append implements Transport.Append.
func (t *WriterTransport) Append(word uint32) error {
	binary.LittleEndian.PutUint32(t.buf[:], word)
	_, err := t.W.Write(t.buf[:])
	return err
}

// Doorbell implements Transport.Doorbell. If the writer can be flushed, it
// is.
func (t *WriterTransport) Doorbell() error {
	if f, ok := t.W.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// ReadWords reads a little-endian word stream as written by
// WriterTransport.
func ReadWords(r io.Reader) ([]uint32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if len(data)%4 != 0 {
		return words, io.ErrUnexpectedEOF
	}
	return words, nil
}
