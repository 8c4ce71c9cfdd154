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
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"rvkernel.dev/rvkernel/pkg/arch/archtest"
	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/pmm"
	"rvkernel.dev/rvkernel/pkg/rand"
	"rvkernel.dev/rvkernel/pkg/ring0/pagetables"
)

// stressASID is the address space the stress tree is flushed under.
const stressASID hostarch.ASID = 1

// stressBase is the first physical page of the stress arena.
const stressBase hostarch.PhysPageNumber = 0x80000

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	mode       hostarch.PagingMode
	workers    int
	iterations int
	pages      uint64
	seed       uint64
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "map and unmap concurrently, then check for leaked tables"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - map and unmap concurrently, then check for leaked tables.

The workers split the range under one root entry of a shared tree, so they
allocate and reclaim the same intermediate tables. Each repeatedly maps a
random range of its own, checks the translations and unmaps it again. Every
eighth iteration maps a huge page and unmaps it in two halves. Once all
workers finish, the tree must hold only its root table.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.TextVar(&s.mode, "mode", hostarch.Layer3, "paging mode: sv39, sv48 or sv57.")
	f.IntVar(&s.workers, "workers", 8, "number of concurrent workers, at most 255.")
	f.IntVar(&s.iterations, "iterations", 1000, "map/unmap rounds per worker.")
	f.Uint64Var(&s.pages, "pages", 4096, "physical pages available for tables.")
	f.Uint64Var(&s.seed, "seed", 1, "seed for the workers' random number generators.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if s.workers < 1 || s.workers > 255 {
		return usageError("-workers must be between 1 and 255, got %d", s.workers)
	}
	if err := s.run(ctx, os.Stdout); err != nil {
		return failure("%v", err)
	}
	return subcommands.ExitSuccess
}

// stressStats counts the operations of a stress run.
type stressStats struct {
	maps    atomicbitops.Uint64
	unmaps  atomicbitops.Uint64
	flushes atomicbitops.Uint64
}

// run performs the stress test and writes a summary to w.
func (s *Stress) run(ctx context.Context, w io.Writer) error {
	arena, err := physmem.NewArena(stressBase, s.pages)
	if err != nil {
		return err
	}
	defer arena.Close()
	alloc := pmm.New()
	if err := alloc.AddRange(arena.Base(), arena.Pages()); err != nil {
		return err
	}

	var stats stressStats
	a := archtest.Arch{
		Mode: s.mode,
		OnFlush: func(hostarch.FlushTarget) {
			stats.flushes.Add(1)
		},
	}
	tree, err := pagetables.New(a, arena, alloc, s.mode)
	if err != nil {
		return err
	}

	// Root entry 1, split into huge-page aligned shares.
	entry := s.mode.EntrySpan(s.mode.Levels() - 1)
	share := bits.AlignDown64(entry/uint64(s.workers), hostarch.EntriesPerTable)
	progress := rate.Sometimes{Interval: time.Second}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		sw := stressWorker{
			tree:  tree,
			arch:  a,
			rng:   rand.New(s.seed + uint64(i)),
			stats: &stats,
			base:  hostarch.VirtPageNumber(entry + uint64(i)*share),
			span:  share,
		}
		g.Go(func() error {
			for n := 0; n < s.iterations; n++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := sw.round(n%8 == 7); err != nil {
					return fmt.Errorf("worker %d round %d: %w", i, n, err)
				}
				progress.Do(func() {
					log.Infof("Stress: %d maps, %d unmaps so far.", stats.maps.Load(), stats.unmaps.Load())
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var tables uint64
	for range tree.Tables() {
		tables++
	}
	fmt.Fprintf(w, "%d maps, %d unmaps, %d flushes\n", stats.maps.Load(), stats.unmaps.Load(), stats.flushes.Load())
	fmt.Fprintf(w, "%d tables reachable, %d pages outstanding\n", tables, alloc.Outstanding())
	if tables != 1 {
		return fmt.Errorf("%d tables remain after unmapping everything", tables)
	}
	if out := alloc.Outstanding(); out != tables {
		return fmt.Errorf("%d table pages leaked", out-tables)
	}
	tree.Release()
	if out := alloc.Outstanding(); out != 0 {
		return fmt.Errorf("%d pages outstanding after release", out)
	}
	return nil
}

// stressWorker maps and unmaps within [base, base+span).
type stressWorker struct {
	tree  *pagetables.PageTree
	arch  archtest.Arch
	rng   *rand.RNG
	stats *stressStats
	base  hostarch.VirtPageNumber
	span  uint64
}

// round maps a random range, checks it and unmaps it.
func (sw *stressWorker) round(huge bool) error {
	var (
		n    uint64
		off  uint64
		phys hostarch.PhysPageNumber
	)
	opts := pagetables.MapOpts{Privilege: hostarch.ReadWrite, Accessed: true, Dirty: true}
	if huge {
		n = hostarch.EntriesPerTable
		off = sw.rng.Uint64() % (sw.span / n) * n
		phys = hostarch.PhysPageNumber(sw.rng.Uint64() % (1 << 20) * n)
		opts.Huge = true
	} else {
		n = 1 + sw.rng.Uint64()%64
		off = sw.rng.Uint64() % (sw.span - n)
		phys = hostarch.PhysPageNumber(sw.rng.Uint64() % (1 << 30))
	}
	virt := sw.base.Add(off)

	if err := sw.tree.Map(phys, virt, n, opts); err != nil {
		return err
	}
	sw.stats.maps.Add(1)

	k := sw.rng.Uint64() % n
	if _, got, ok := sw.tree.Translate(virt.Add(k)); !ok || got != phys.Add(k) {
		return fmt.Errorf("%v translates to (%v, %v), want %v", virt.Add(k), got, ok, phys.Add(k))
	}

	if huge {
		// Unmapping half of a huge page splits it.
		if err := sw.unmap(virt, n/2); err != nil {
			return err
		}
		if _, got, ok := sw.tree.Translate(virt.Add(n / 2)); !ok || got != phys.Add(n/2) {
			return fmt.Errorf("%v lost after split: (%v, %v)", virt.Add(n/2), got, ok)
		}
		return sw.unmap(virt.Add(n/2), n-n/2)
	}
	return sw.unmap(virt, n)
}

// unmap unmaps n pages at virt and flushes them.
func (sw *stressWorker) unmap(virt hostarch.VirtPageNumber, n uint64) error {
	if err := sw.tree.Unmap(virt, n); err != nil {
		return err
	}
	sw.stats.unmaps.Add(1)
	for i := uint64(0); i < n; i++ {
		sw.arch.FlushMMU(hostarch.FlushPage(stressASID, virt.Add(i).Addr()))
	}
	return nil
}
