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

// Package metric provides the counters exported by the command-submission
// engine.
//
// All metrics live in a package registry rather than the Prometheus default
// registry, so embedding programs decide whether and how to expose them.
package metric

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "gdev"

// Registry holds every metric defined by this package.
var Registry = prometheus.NewRegistry()

var (
	// PushbufPackets counts method headers encoded, by subchannel.
	PushbufPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushbuf_packets_total",
		Help:      "Method packets encoded into push buffers.",
	}, []string{"subchannel"})

	// PushbufWords counts words handed to ring transports, by subchannel of
	// the packet they belong to.
	PushbufWords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushbuf_words_total",
		Help:      "Words encoded into push buffers, including headers.",
	}, []string{"subchannel"})

	// PushbufSubmits counts doorbell rings.
	PushbufSubmits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushbuf_submits_total",
		Help:      "Push buffer submissions.",
	})

	// PushbufSubmitErrors counts submissions failed by the transport.
	PushbufSubmitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushbuf_submit_errors_total",
		Help:      "Push buffer submissions that failed in the ring transport.",
	})

	// Launches counts encoded kernel launches.
	Launches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "launches_total",
		Help:      "Kernel launches encoded.",
	})

	// CopyBytes counts bytes covered by copy commands, by engine.
	CopyBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copy_bytes_total",
		Help:      "Bytes covered by encoded copy commands.",
	}, []string{"engine"})

	// CopyCommands counts copy commands, by engine.
	CopyCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copy_commands_total",
		Help:      "Copy commands encoded.",
	}, []string{"engine"})

	// HandlerAllocAttempts counts trap handler block allocations, by
	// outcome: "accepted" or "rejected".
	HandlerAllocAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debug_handler_alloc_attempts_total",
		Help:      "Trap handler block allocations by placement outcome.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		PushbufPackets,
		PushbufWords,
		PushbufSubmits,
		PushbufSubmitErrors,
		Launches,
		CopyBytes,
		CopyCommands,
		HandlerAllocAttempts,
	)
}

// WriteText writes all metrics in the Prometheus text exposition format.
func WriteText(w io.Writer) error {
	var (
		mfs []*dto.MetricFamily
		err error
	)
	if mfs, err = Registry.Gather(); err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
