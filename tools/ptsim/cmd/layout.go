// Copyright 2026 The gVisor Authors.
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

	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/arch/archtest"
	"rvkernel.dev/rvkernel/pkg/boot"
	"rvkernel.dev/rvkernel/pkg/kernel"
	"rvkernel.dev/rvkernel/pkg/rand"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	seed  uint64
	clone bool
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "boot a simulated machine and print the kernel mappings"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [flags] <layout.toml> - boot a simulated machine and print the kernel mappings.

The layout file describes the machine's memory map and kernel placement. The
kernel page tree is built exactly as on hardware, with an arena of host memory
standing in for the machine's unused RAM.

EXAMPLE:
    $ ptsim layout -seed=1 machine.toml

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&l.seed, "seed", 0, "seed for the boot random number generator; 0 reads one from the host.")
	f.BoolVar(&l.clone, "clone", false, "clone the kernel tree and check the copy maps the same ranges.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	layout, err := boot.LoadLayout(f.Arg(0))
	if err != nil {
		return failure("%v", err)
	}
	seed := l.seed
	if seed == 0 {
		if seed, err = rand.HostSeed(); err != nil {
			return failure("%v", err)
		}
	}
	if err := l.run(os.Stdout, layout, seed); err != nil {
		return failure("%v", err)
	}
	return subcommands.ExitSuccess
}

// run boots layout and writes the resulting mappings to w.
func (l *Layout) run(w io.Writer, layout *boot.Layout, seed uint64) error {
	arena, err := newArena(layout.Memory)
	if err != nil {
		return err
	}
	defer arena.Close()

	var mmu archtest.MMU
	a := mmu.Install(archtest.Arch{Mode: layout.Mode})
	k, err := kernel.Start(a, layout.Params(arena, seed))
	if err != nil {
		return err
	}
	defer k.Tree.Release()

	fmt.Fprintf(w, "satp %v\n", mmu.SATP)
	var tables int
	for range k.Tree.Tables() {
		tables++
	}
	fmt.Fprintf(w, "%d tables, %d pages free\n", tables, k.Allocator.Free())
	for m := range k.Tree.Mappings() {
		fmt.Fprintln(w, m)
	}

	if l.clone {
		c, err := k.Tree.Clone()
		if err != nil {
			return fmt.Errorf("cloning kernel tree: %w", err)
		}
		defer c.Release()
		if err := sameMappings(k.Tree.Mappings(), c.Mappings()); err != nil {
			return fmt.Errorf("clone of %v: %w", k.Tree.Root(), err)
		}
		fmt.Fprintf(w, "clone %v matches\n", c.Root())
	}
	return nil
}
