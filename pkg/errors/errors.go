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

// Package errors holds the standardized error definition for gdev.
//
// Errors are allocated once and compared by identity, so callers should use
// errors.Is on wrapped values.
package errors

import (
	"golang.org/x/sys/unix"
)

// Error represents a driver-facing errno with a descriptive message.
type Error struct {
	errno   unix.Errno
	message string
}

// New creates a new *Error.
func New(err unix.Errno, message string) *Error {
	return &Error{
		errno:   err,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the underlying errno value.
func (e *Error) Errno() unix.Errno { return e.errno }

// ToErrno converts err into an errno. Errors that are not *Error, directly or
// through wrapping, map to EIO.
func ToErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for e := err; e != nil; {
		if ge, ok := e.(*Error); ok {
			return ge.errno
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return unix.EIO
}
