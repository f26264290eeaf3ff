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
	"gdev.dev/gdev/pkg/errors"
	"golang.org/x/sys/unix"
)

// Errors returned by engine operations. They are wrapped with context, so
// compare with errors.Is.
var (
	// ErrOutOfMemory is returned when the address space cannot satisfy an
	// allocation.
	ErrOutOfMemory = errors.New(unix.ENOMEM, "out of device memory")

	// ErrAllocationPolicy is returned when no allocated block satisfies a
	// placement policy within the attempt bound.
	ErrAllocationPolicy = errors.New(unix.EADDRNOTAVAIL, "allocation policy not satisfied")

	// ErrUnsupportedEngine is returned for an engine or generation the
	// device does not expose.
	ErrUnsupportedEngine = errors.New(unix.ENODEV, "engine not supported by device")

	// ErrInvariantViolation is returned for a malformed kernel descriptor
	// or device description.
	ErrInvariantViolation = errors.New(unix.EINVAL, "invalid argument")
)
