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
	"rvkernel.dev/rvkernel/pkg/arch/riscv64"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// Encode implements subcommands.Command for the "encode" command.
type Encode struct {
	pointer   bool
	privilege string
	cache     string
	global    bool
	user      bool
	accessed  bool
	dirty     bool
}

// Name implements subcommands.Command.Name.
func (*Encode) Name() string {
	return "encode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Encode) Synopsis() string {
	return "print the machine word of a page-table entry"
}

// Usage implements subcommands.Command.Usage.
func (*Encode) Usage() string {
	return `encode [flags] <page> - print the machine word of a page-table entry.

EXAMPLE:
    $ ptsim encode -priv=rw- -global 0x80200
    $ ptsim encode -pointer 0x80001

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Encode) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&e.pointer, "pointer", false, "encode a pointer to a table instead of a leaf.")
	f.StringVar(&e.privilege, "priv", "r--", "leaf privilege: r--, --x, r-x, rw- or rwx.")
	f.StringVar(&e.cache, "cache", "WB", "leaf cache type: WB, NC or IO.")
	f.BoolVar(&e.global, "global", false, "set the global bit.")
	f.BoolVar(&e.user, "user", false, "set the user bit.")
	f.BoolVar(&e.accessed, "accessed", false, "set the accessed bit.")
	f.BoolVar(&e.dirty, "dirty", false, "set the dirty bit.")
}

// Execute implements subcommands.Command.Execute.
func (e *Encode) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	entry, err := e.entry(f.Arg(0))
	if err != nil {
		return usageError("%v", err)
	}
	printEntry(os.Stdout, entry)
	return subcommands.ExitSuccess
}

// entry builds the entry described by the flags, pointing to page.
func (e *Encode) entry(page string) (pte.Entry, error) {
	n, err := parseUint(page)
	if err != nil {
		return nil, fmt.Errorf("invalid page %q: %w", page, err)
	}
	to := hostarch.PhysPageNumber(n)
	if to > riscv64.MaxPhysPageNumber {
		return nil, fmt.Errorf("page %v is beyond %v", to, riscv64.MaxPhysPageNumber)
	}
	if e.pointer {
		return pte.Pointer{To: to, Global: e.global}, nil
	}
	p, err := hostarch.ParsePrivilege(e.privilege)
	if err != nil {
		return nil, err
	}
	c, err := hostarch.ParseCacheType(e.cache)
	if err != nil {
		return nil, err
	}
	return pte.Leaf{
		To:        to,
		Privilege: p,
		Cache:     c,
		Global:    e.global,
		User:      e.user,
		Accessed:  e.accessed,
		Dirty:     e.dirty,
	}, nil
}

// Decode implements subcommands.Command for the "decode" command.
type Decode struct{}

// Name implements subcommands.Command.Name.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Decode) Synopsis() string {
	return "print the page-table entry held in a machine word"
}

// Usage implements subcommands.Command.Usage.
func (*Decode) Usage() string {
	return `decode <word>... - print the page-table entry held in each machine word.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Decode) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Decode) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	for _, arg := range f.Args() {
		n, err := parseUint(arg)
		if err != nil {
			return usageError("invalid word %q: %v", arg, err)
		}
		e, err := decode(n)
		if err != nil {
			return failure("%v", err)
		}
		printEntry(os.Stdout, e)
	}
	return subcommands.ExitSuccess
}

// decode decodes num, reporting words no entry encodes to as errors.
func decode(num uint64) (e pte.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%#016x is not an entry: %v", num, r)
		}
	}()
	return riscv64.Codec{}.NumToPTE(num), nil
}

func printEntry(w io.Writer, e pte.Entry) {
	fmt.Fprintf(w, "%#016x %v\n", riscv64.Codec{}.PTEToNum(e), e)
}
