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

package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestToErrno(t *testing.T) {
	nomem := New(unix.ENOMEM, "out of memory")
	for _, tc := range []struct {
		name string
		err  error
		want unix.Errno
	}{
		{name: "nil", err: nil, want: 0},
		{name: "direct", err: nomem, want: unix.ENOMEM},
		{name: "wrapped", err: fmt.Errorf("allocating fence: %w", nomem), want: unix.ENOMEM},
		{name: "foreign", err: goerrors.New("boom"), want: unix.EIO},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToErrno(tc.err); got != tc.want {
				t.Errorf("ToErrno(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	a := New(unix.EINVAL, "invalid")
	b := New(unix.EINVAL, "invalid")
	wrapped := fmt.Errorf("launch: %w", a)
	if !goerrors.Is(wrapped, a) {
		t.Errorf("errors.Is(%v, a) = false, want true", wrapped)
	}
	if goerrors.Is(wrapped, b) {
		t.Errorf("errors.Is(%v, b) = true, want false: errors compare by identity", wrapped)
	}
}
