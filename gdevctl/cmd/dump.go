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
	"gdev.dev/gdev/pkg/pushbuf"
	"github.com/google/subcommands"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	summary bool
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "decode a command stream file"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump [flags] <file> - print the method packets of a file written with --out.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.summary, "summary", false, "print packet and word counts per subchannel only.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		return util.Errorf("%v", err)
	}
	defer file.Close()
	if err := dump(os.Stdout, file, d.summary); err != nil {
		return util.Errorf("dumping %q: %v", f.Arg(0), err)
	}
	return subcommands.ExitSuccess
}

// dump decodes the word stream in r and writes it to w.
func dump(w io.Writer, r io.Reader, summary bool) error {
	words, err := pushbuf.ReadWords(r)
	if err != nil {
		return err
	}
	pkts, err := pushbuf.Decode(words)
	if err != nil {
		return err
	}
	if !summary {
		for _, p := range pkts {
			fmt.Fprintln(w, p)
		}
		return nil
	}

	type counts struct{ packets, args int }
	var per [8]counts
	padding := 0
	for _, p := range pkts {
		if p.Padding {
			padding++
			continue
		}
		per[p.Subchannel].packets++
		per[p.Subchannel].args += len(p.Args)
	}
	fmt.Fprintf(w, "%d words, %d packets, %d padding\n", len(words), len(pkts)-padding, padding)
	for subch, c := range per {
		if c.packets != 0 {
			fmt.Fprintf(w, "subchannel %d: %d packets, %d arguments\n", subch, c.packets, c.args)
		}
	}
	return nil
}
