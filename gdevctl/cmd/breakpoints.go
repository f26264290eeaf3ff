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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"gdev.dev/gdev/gdevctl/cmd/util"
	"gdev.dev/gdev/gdevctl/config"
	"gdev.dev/gdev/pkg/compute"
	"gdev.dev/gdev/pkg/compute/nvc0"
	"github.com/google/subcommands"
)

// Breakpoints implements subcommands.Command for the "breakpoints" command.
type Breakpoints struct {
	enable  bool
	trigger bool
	resume  bool
}

// Name implements subcommands.Command.Name.
func (*Breakpoints) Name() string {
	return "breakpoints"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Breakpoints) Synopsis() string {
	return "show or change the breakpoint state of every multiprocessor"
}

// Usage implements subcommands.Command.Usage.
func (*Breakpoints) Usage() string {
	return `breakpoints [flags] - walk the GPCs and TPCs of the card and print the
breakpoint control and status of every multiprocessor.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Breakpoints) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.enable, "enable", false, "arm breakpoints first.")
	f.BoolVar(&b.trigger, "trigger", false, "raise a breakpoint trap on every multiprocessor.")
	f.BoolVar(&b.resume, "resume", false, "resume multiprocessors stopped at a breakpoint.")
}

// Execute implements subcommands.Command.Execute.
func (b *Breakpoints) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || (b.trigger && b.resume) {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	regs, release, err := openRegisters(conf)
	if err != nil {
		return util.Errorf("opening registers: %v", err)
	}
	defer release()
	b.apply(os.Stdout, regs, conf.Card)
	return subcommands.ExitSuccess
}

// apply performs the requested changes on card and prints the resulting
// state to w.
func (b *Breakpoints) apply(w io.Writer, regs compute.RegisterFile, card int) {
	if b.enable {
		n := nvc0.EnableBreakpoints(regs, card)
		fmt.Fprintf(w, "Armed %d multiprocessors\n", n)
	}
	if b.trigger {
		nvc0.TriggerBreakpoint(regs, card)
	}
	if b.resume {
		nvc0.ResumeBreakpoint(regs, card)
	}
	mps := nvc0.Breakpoints(regs, card)
	for _, mp := range mps {
		fmt.Fprintln(w, mp)
	}
	if len(mps) == 0 {
		fmt.Fprintln(w, "No multiprocessors found")
	}
}
