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

// Package pmm implements a physical page allocator.
//
// Free memory is kept as a set of maximal runs ordered by first page.
// Allocation is first fit; freed runs are coalesced with their neighbours.
package pmm

import (
	"fmt"

	"github.com/google/btree"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// degree is the btree degree used for both run sets.
const degree = 8

// Run is a range of physical pages.
type Run struct {
	Start hostarch.PhysPageNumber
	Pages uint64
}

// End returns the first page after r.
func (r Run) End() hostarch.PhysPageNumber {
	return r.Start.Add(r.Pages)
}

// Contains returns true if r wholly contains o.
func (r Run) Contains(o Run) bool {
	return r.Start <= o.Start && o.End() <= r.End()
}

// String implements fmt.Stringer.String.
func (r Run) String() string {
	return fmt.Sprintf("[%v, +%d)", r.Start, r.Pages)
}

func runLess(a, b Run) bool {
	return a.Start < b.Start
}

// Allocator is a physmem.Allocator over a set of page ranges.
//
// The zero value is not usable; call New.
type Allocator struct {
	mu sync.Mutex

	// managed holds every range given to AddRange.
	//
	// +checklocks:mu
	managed *btree.BTreeG[Run]

	// free holds the unallocated runs. No two runs overlap or touch.
	//
	// +checklocks:mu
	free *btree.BTreeG[Run]

	// +checklocks:mu
	freePages uint64

	// +checklocks:mu
	outstanding uint64
}

var _ physmem.Allocator = (*Allocator)(nil)

// New returns an allocator managing no memory.
func New() *Allocator {
	return &Allocator{
		managed: btree.NewG(degree, runLess),
		free:    btree.NewG(degree, runLess),
	}
}

// overlapping returns the run in t overlapping r, if any.
func overlapping(t *btree.BTreeG[Run], r Run) (Run, bool) {
	var (
		found Run
		ok    bool
	)
	t.DescendLessOrEqual(r, func(prev Run) bool {
		if prev.End() > r.Start {
			found, ok = prev, true
		}
		return false
	})
	if ok {
		return found, true
	}
	t.AscendGreaterOrEqual(r, func(next Run) bool {
		if next.Start < r.End() {
			found, ok = next, true
		}
		return false
	})
	return found, ok
}

// AddRange makes [start, start+pages) available for allocation.
func (a *Allocator) AddRange(start hostarch.PhysPageNumber, pages uint64) error {
	r := Run{Start: start, Pages: pages}
	if pages == 0 {
		return fmt.Errorf("empty range at %v", start)
	}
	if _, ok := start.ForwardChecked(pages); !ok {
		return fmt.Errorf("range %v overflows", r)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if o, ok := overlapping(a.managed, r); ok {
		return fmt.Errorf("range %v overlaps managed range %v", r, o)
	}
	a.managed.ReplaceOrInsert(r)
	a.insertFreeLocked(r)
	log.Debugf("Added physical range %v.", r)
	return nil
}

// Reserve removes [start, start+pages) from the free set without counting
// it as outstanding. It is used for memory occupied before the allocator
// took over, such as the kernel image.
func (a *Allocator) Reserve(start hostarch.PhysPageNumber, pages uint64) error {
	r := Run{Start: start, Pages: pages}
	a.mu.Lock()
	defer a.mu.Unlock()

	var owner Run
	found := false
	a.free.DescendLessOrEqual(r, func(prev Run) bool {
		owner, found = prev, prev.Contains(r)
		return false
	})
	if pages == 0 || !found {
		return fmt.Errorf("range %v is not free", r)
	}
	a.free.Delete(owner)
	a.freePages -= owner.Pages
	if head := uint64(r.Start - owner.Start); head > 0 {
		a.insertFreeLocked(Run{Start: owner.Start, Pages: head})
	}
	if tail := uint64(owner.End() - r.End()); tail > 0 {
		a.insertFreeLocked(Run{Start: r.End(), Pages: tail})
	}
	return nil
}

// insertFreeLocked adds r to the free set, merging it with adjacent runs.
//
// Preconditions: a.mu is locked. r does not overlap any free run.
func (a *Allocator) insertFreeLocked(r Run) {
	a.freePages += r.Pages
	if prev, ok := a.free.Get(Run{Start: r.Start}); ok {
		panic(fmt.Sprintf("free run %v already starts at %v", prev, r.Start))
	}
	var (
		prev  Run
		merge bool
	)
	a.free.DescendLessOrEqual(r, func(p Run) bool {
		prev, merge = p, p.End() == r.Start
		return false
	})
	if merge {
		a.free.Delete(prev)
		r = Run{Start: prev.Start, Pages: prev.Pages + r.Pages}
	}
	if next, ok := a.free.Get(Run{Start: r.End()}); ok {
		a.free.Delete(next)
		r.Pages += next.Pages
	}
	a.free.ReplaceOrInsert(r)
}

// Allocate implements physmem.Allocator.Allocate.
func (a *Allocator) Allocate() (hostarch.PhysPageNumber, error) {
	return a.AllocateContiguous(1)
}

// AllocateContiguous implements physmem.Allocator.AllocateContiguous.
func (a *Allocator) AllocateContiguous(count uint64) (hostarch.PhysPageNumber, error) {
	if count == 0 {
		return 0, fmt.Errorf("%w: zero pages requested", physmem.ErrPhysicalPageAlloc)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var (
		fit   Run
		found bool
	)
	a.free.Ascend(func(r Run) bool {
		if r.Pages >= count {
			fit, found = r, true
			return false
		}
		return true
	})
	if !found {
		return 0, fmt.Errorf("%w: %d contiguous pages requested, %d free", physmem.ErrPhysicalPageAlloc, count, a.freePages)
	}
	a.free.Delete(fit)
	if fit.Pages > count {
		a.free.ReplaceOrInsert(Run{Start: fit.Start.Add(count), Pages: fit.Pages - count})
	}
	a.freePages -= count
	a.outstanding += count
	return fit.Start, nil
}

// Deallocate implements physmem.Allocator.Deallocate.
func (a *Allocator) Deallocate(page hostarch.PhysPageNumber) {
	a.DeallocateContiguous(page, 1)
}

// DeallocateContiguous implements physmem.Allocator.DeallocateContiguous.
//
// It panics if any page in the run is not managed by a, or is already free.
func (a *Allocator) DeallocateContiguous(page hostarch.PhysPageNumber, count uint64) {
	r := Run{Start: page, Pages: count}
	a.mu.Lock()
	defer a.mu.Unlock()

	owned := false
	a.managed.DescendLessOrEqual(r, func(m Run) bool {
		owned = m.Contains(r)
		return false
	})
	if count == 0 || !owned {
		panic(fmt.Sprintf("freeing unmanaged range %v", r))
	}
	if o, ok := overlapping(a.free, r); ok {
		panic(fmt.Sprintf("double free of %v: overlaps free run %v", r, o))
	}
	if a.outstanding < count {
		panic(fmt.Sprintf("freeing %v with only %d pages outstanding", r, a.outstanding))
	}
	a.outstanding -= count
	a.insertFreeLocked(r)
}

// Outstanding returns the number of allocated pages not yet freed.
func (a *Allocator) Outstanding() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}

// Free returns the number of pages available for allocation.
func (a *Allocator) Free() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freePages
}

// FreeRuns returns the free runs in ascending order.
func (a *Allocator) FreeRuns() []Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	runs := make([]Run, 0, a.free.Len())
	a.free.Ascend(func(r Run) bool {
		runs = append(runs, r)
		return true
	})
	return runs
}
