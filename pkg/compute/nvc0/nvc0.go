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

// Package nvc0 implements the compute engine of the GF100 (Fermi) family.
//
// Importing the package registers the engine with compute.Register for
// chipsets 0xc0 to 0xdf.
package nvc0

import (
	"fmt"
	"math"

	"gdev.dev/gdev/pkg/compute"
)

func init() {
	compute.Register(compute.GenerationNVC0, func(dev *compute.Device) (compute.Engine, error) {
		cfg := DefaultConfig()
		switch c := dev.EngineConfig.(type) {
		case nil:
		case Config:
			cfg = c
		case *Config:
			cfg = *c
		default:
			return nil, fmt.Errorf("engine config of type %T: %w", c, compute.ErrInvariantViolation)
		}
		return New(dev, cfg)
	})
}

// HandlerPolicy governs trap handler placement.
type HandlerPolicy struct {
	// MaxAttempts bounds the number of blocks allocated while looking for
	// an acceptable one.
	MaxAttempts int

	// Accept reports whether a handler at handler may serve code at code.
	Accept func(handler, code uint64) bool
}

// HandlerAbove accepts a handler placed above the code whose displacement
// fits the signed 32-bit trap handler register.
func HandlerAbove(handler, code uint64) bool {
	return handler > code && handler-code <= math.MaxInt32
}

// DefaultHandlerPolicy returns the policy used unless configured otherwise.
func DefaultHandlerPolicy() HandlerPolicy {
	return HandlerPolicy{
		MaxAttempts: 100,
		Accept:      HandlerAbove,
	}
}

// Config configures an Engine.
type Config struct {
	// Handler is the trap handler placement policy.
	Handler HandlerPolicy

	// UsePCOPY1 enables the second asynchronous copy engine when the
	// device has one.
	UsePCOPY1 bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Handler: DefaultHandlerPolicy()}
}

// Engine is the nvc0 compute.Engine.
type Engine struct {
	dev *compute.Device
	cfg Config
}

var _ compute.Engine = (*Engine)(nil)

// New returns an engine for dev.
func New(dev *compute.Device, cfg Config) (*Engine, error) {
	if cfg.Handler.MaxAttempts <= 0 || cfg.Handler.Accept == nil {
		return nil, fmt.Errorf("handler policy %+v: %w", cfg.Handler, compute.ErrInvariantViolation)
	}
	return &Engine{dev: dev, cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}
