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

// Package pagetables provides a lock-free, architecture-independent page
// table implementation.
//
// A PageTree is a tree of page-sized tables rooted at a single physical
// page. Entries are decoded and encoded through the architecture's codec, so
// the walking logic here never depends on a particular entry layout.
package pagetables

import (
	"errors"
	"fmt"
	"time"

	"rvkernel.dev/rvkernel/pkg/arch"
	"rvkernel.dev/rvkernel/pkg/cleanup"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/pte"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// Allocator allocates the pages backing page tables.
type Allocator = physmem.Allocator

// Accessor makes page-table pages addressable.
type Accessor = physmem.Accessor

// AccessGuard scopes access to one page-table page.
type AccessGuard = physmem.AccessGuard

var (
	// ErrPhysicalPageAlloc is returned when a page table page cannot be
	// allocated.
	ErrPhysicalPageAlloc = physmem.ErrPhysicalPageAlloc

	// ErrInvalidRange is returned when a range falls outside the mappable
	// address space.
	ErrInvalidRange = errors.New("invalid address range")

	// ErrMappingConflict is returned by Map when part of the range is
	// already mapped.
	ErrMappingConflict = errors.New("range already mapped")

	// ErrUnmappedRange is returned by Unmap when part of the range is not
	// mapped.
	ErrUnmappedRange = errors.New("range not mapped")

	// ErrUnsupportedPagingMode is returned by New for a paging mode the
	// architecture cannot use.
	ErrUnsupportedPagingMode = errors.New("unsupported paging mode")
)

// warnings reports contention that should be rare.
var warnings = log.BasicRateLimitedLogger(time.Minute)

// PageTree is a multi-level page table.
//
// Map, Unmap, Translate, Mappings and Tables may be called concurrently.
// Release and Clone must not run concurrently with any other method. Callers
// are responsible for flushing the MMU after changing a live tree.
//
// Tables emptied by Unmap are unlinked at once but only returned to the
// allocator when no operation is in flight, since a concurrent walker may
// still hold a pointer to them.
type PageTree struct {
	arch      arch.Arch
	accessor  Accessor
	allocator Allocator
	mode      hostarch.PagingMode

	// root is immutable after construction.
	root hostarch.PhysPageNumber

	// mu protects the fields below.
	mu sync.Mutex

	// active is the number of operations walking the tree.
	active int

	// retired holds unlinked tables waiting for active to reach zero.
	retired []hostarch.PhysPageNumber
}

// New returns an empty page tree using mode.
//
// The tree allocates its tables from allocator and reaches them through
// accessor. mode must be supported by a.
func New(a arch.Arch, accessor Accessor, allocator Allocator, mode hostarch.PagingMode) (*PageTree, error) {
	if !arch.SupportsPagingMode(a, mode) {
		return nil, fmt.Errorf("%w: %v (deepest supported is %v)", ErrUnsupportedPagingMode, mode, a.DefaultPagingMode())
	}
	t := &PageTree{
		arch:      a,
		accessor:  accessor,
		allocator: allocator,
		mode:      mode,
	}
	root, err := t.newTable()
	if err != nil {
		return nil, err
	}
	t.root = root
	log.Debugf("New %v page tree rooted at %v.", mode, root)
	return t, nil
}

// Root returns the physical page of the root table.
func (t *PageTree) Root() hostarch.PhysPageNumber {
	return t.root
}

// Mode returns the tree's paging mode.
func (t *PageTree) Mode() hostarch.PagingMode {
	return t.mode
}

// SetMMU installs the tree as the translation root for asid under mode. It
// returns false if the hardware rejected the configuration.
//
// The caller must flush the MMU afterwards.
func (t *PageTree) SetMMU(asid hostarch.ASID, mode hostarch.PagingMode) bool {
	return t.arch.SetMMU(asid, mode, t.root)
}

// Activate installs the tree for asid in its own mode and flushes asid's
// cached translations.
func (t *PageTree) Activate(asid hostarch.ASID) bool {
	if !t.SetMMU(asid, t.mode) {
		return false
	}
	t.arch.FlushMMU(hostarch.FlushASID(asid))
	return true
}

// table returns the table stored in page. The caller must release the guard
// once done with the table.
func (t *PageTree) table(page hostarch.PhysPageNumber) (*PTEs, AccessGuard) {
	g := t.accessor.AccessPhysPage(page)
	return (*PTEs)(g.Pointer()), g
}

// newTable allocates and initializes an unreachable table.
func (t *PageTree) newTable() (hostarch.PhysPageNumber, error) {
	page, err := t.allocator.Allocate()
	if err != nil {
		return 0, fmt.Errorf("allocating page table: %w", err)
	}
	tbl, g := t.table(page)
	tbl.Init(t.arch)
	g.Release()
	return page, nil
}

// freeTable returns a table page that no walker can reach to the allocator.
func (t *PageTree) freeTable(page hostarch.PhysPageNumber) {
	t.allocator.Deallocate(page)
}

// enter registers an operation that walks the tree. Every call must be
// paired with a call to exit.
func (t *PageTree) enter() {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()
}

// exit ends an operation started with enter. The last operation to leave
// frees the retired tables.
func (t *PageTree) exit() {
	t.mu.Lock()
	t.active--
	var free []hostarch.PhysPageNumber
	if t.active == 0 {
		free, t.retired = t.retired, nil
	}
	t.mu.Unlock()
	for _, page := range free {
		t.freeTable(page)
	}
	if len(free) > 0 {
		log.Debugf("Freed %d retired tables.", len(free))
	}
}

// retire frees page, a table just unlinked from the tree, once every
// operation in flight has finished.
//
// Preconditions: The caller is between enter and exit.
func (t *PageTree) retire(page hostarch.PhysPageNumber) {
	t.mu.Lock()
	t.retired = append(t.retired, page)
	t.mu.Unlock()
}

// freeSubtree frees page, a table at level, and every table below it.
//
// Preconditions: The subtree is unreachable.
func (t *PageTree) freeSubtree(page hostarch.PhysPageNumber, level int) {
	if level > 0 {
		tbl, g := t.table(page)
		for _, e := range tbl.Iter(t.arch) {
			if p, ok := e.(pte.Pointer); ok {
				t.freeSubtree(p.To, level-1)
			}
		}
		g.Release()
	}
	t.freeTable(page)
}

// Release frees every table in the tree, including the root. Pages mapped by
// leaves are not freed.
//
// The tree must not be used, or be installed in the MMU, afterwards.
func (t *PageTree) Release() {
	t.freeSubtree(t.root, t.topLevel())
	log.Debugf("Released page tree rooted at %v.", t.root)
}

// Clone returns a deep copy of the tree. The copy shares no tables with t;
// leaf entries are copied verbatim, so both trees map the same physical
// pages.
func (t *PageTree) Clone() (*PageTree, error) {
	root, err := t.cloneTable(t.root, t.topLevel())
	if err != nil {
		return nil, err
	}
	c := &PageTree{
		arch:      t.arch,
		accessor:  t.accessor,
		allocator: t.allocator,
		mode:      t.mode,
		root:      root,
	}
	log.Debugf("Cloned page tree %v to %v.", t.root, root)
	return c, nil
}

// cloneTable copies src, a table at level, and every table below it.
func (t *PageTree) cloneTable(src hostarch.PhysPageNumber, level int) (hostarch.PhysPageNumber, error) {
	dst, err := t.newTable()
	if err != nil {
		return 0, err
	}
	cu := cleanup.Make(func() { t.freeSubtree(dst, level) })
	defer cu.Clean()

	srcTbl, srcGuard := t.table(src)
	defer srcGuard.Release()
	dstTbl, dstGuard := t.table(dst)
	defer dstGuard.Release()
	// Clone excludes writers, and dst is not yet reachable.
	for i := range srcTbl {
		num := srcTbl[i].RacyLoad()
		if p, ok := t.arch.NumToPTE(num).(pte.Pointer); ok && level > 0 {
			child, err := t.cloneTable(p.To, level-1)
			if err != nil {
				return 0, err
			}
			p.To = child
			num = t.arch.PTEToNum(p)
		}
		dstTbl[i].RacyStore(num)
	}

	cu.Release()
	return dst, nil
}

// topLevel returns the level of the root table.
func (t *PageTree) topLevel() int {
	return t.mode.Levels() - 1
}
