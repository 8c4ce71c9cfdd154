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

package pagetables

import (
	"fmt"

	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pte"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// entryPages returns the number of pages from virt to the end of the entry
// at level containing it, or n if that comes earlier.
func (t *PageTree) entryPages(virt hostarch.VirtPageNumber, n uint64, level int) uint64 {
	span := t.mode.EntrySpan(level)
	end := bits.AlignDown64(uint64(virt), span) + span
	if rem := end - uint64(virt); rem < n {
		return rem
	}
	return n
}

// upperHalf returns true if virt lies in the sign-extended upper half of the
// address space.
func (t *PageTree) upperHalf(virt hostarch.VirtPageNumber) bool {
	return uint64(virt)>>uint64(t.mode.VirtBits()-1-hostarch.PageShift) != 0
}

// canonical sign-extends a page number built from table indices.
func (t *PageTree) canonical(v uint64) hostarch.VirtPageNumber {
	top := uint64(t.mode.VirtBits() - 1 - hostarch.PageShift)
	if v>>top != 0 {
		v |= uint64(hostarch.MaxVirtPageNumber) &^ (uint64(1)<<top - 1)
	}
	return hostarch.VirtPageNumber(v)
}

// checkRange returns ErrInvalidRange unless [virt, virt+length) is a
// non-empty range of valid page numbers within one half of the address
// space.
func (t *PageTree) checkRange(virt hostarch.VirtPageNumber, length uint64) error {
	if length == 0 {
		return fmt.Errorf("%w: empty range at %v", ErrInvalidRange, virt)
	}
	last, ok := virt.ForwardChecked(length - 1)
	if !ok || !virt.IsValid(t.mode) || !last.IsValid(t.mode) || t.upperHalf(virt) != t.upperHalf(last) {
		return fmt.Errorf("%w: %v+%d under %v", ErrInvalidRange, virt, length, t.mode)
	}
	return nil
}

// visitor is called by visit for each piece of a range. A piece is covered
// by a single entry at level: a leaf, or an Invalid entry standing for a gap.
// Returning false stops the walk.
type visitor func(virt hostarch.VirtPageNumber, pages uint64, level int, e pte.Entry) bool

// visit walks [virt, virt+n) under page, a table at level, without
// modifying it. It returns false if fn stopped the walk.
func (t *PageTree) visit(page hostarch.PhysPageNumber, level int, virt hostarch.VirtPageNumber, n uint64, fn visitor) bool {
	tbl, g := t.table(page)
	defer g.Release()
	for n > 0 {
		pages := t.entryPages(virt, n, level)
		e := tbl.Load(t.arch, virt.Index(level))
		if p, ok := e.(pte.Pointer); ok && level > 0 {
			if !t.visit(p.To, level-1, virt, pages, fn) {
				return false
			}
		} else if !fn(virt, pages, level, e) {
			return false
		}
		virt = virt.Add(pages)
		n -= pages
	}
	return true
}

// firstMapped returns the first page in [virt, virt+n) covered by a valid
// entry.
func (t *PageTree) firstMapped(virt hostarch.VirtPageNumber, n uint64) (hostarch.VirtPageNumber, pte.Entry, bool) {
	var (
		found hostarch.VirtPageNumber
		entry pte.Entry
	)
	stopped := !t.visit(t.root, t.topLevel(), virt, n, func(v hostarch.VirtPageNumber, _ uint64, _ int, e pte.Entry) bool {
		if e.Valid() {
			found, entry = v, e
			return false
		}
		return true
	})
	return found, entry, stopped
}

// firstUnmapped returns the first page in [virt, virt+n) not covered by a
// valid entry.
func (t *PageTree) firstUnmapped(virt hostarch.VirtPageNumber, n uint64) (hostarch.VirtPageNumber, bool) {
	var found hostarch.VirtPageNumber
	stopped := !t.visit(t.root, t.topLevel(), virt, n, func(v hostarch.VirtPageNumber, _ uint64, _ int, e pte.Entry) bool {
		if !e.Valid() {
			found = v
			return false
		}
		return true
	})
	return found, stopped
}

// tableAt returns the table at level whose entries cover virt, if the path
// to it exists.
func (t *PageTree) tableAt(virt hostarch.VirtPageNumber, level int) (hostarch.PhysPageNumber, bool) {
	if level == t.topLevel() {
		return t.root, true
	}
	p, ok := t.pointerTo(virt, level)
	return p.To, ok
}

// pointerTo returns the entry linking the table at level whose entries cover
// virt, if the path to it exists. level must be below the root.
func (t *PageTree) pointerTo(virt hostarch.VirtPageNumber, level int) (pte.Pointer, bool) {
	var p pte.Pointer
	page := t.root
	for l := t.topLevel(); l > level; l-- {
		tbl, g := t.table(page)
		e := tbl.Load(t.arch, virt.Index(l))
		g.Release()
		var ok bool
		if p, ok = e.(pte.Pointer); !ok {
			return pte.Pointer{}, false
		}
		page = p.To
	}
	return p, true
}

// linked returns true if page is still the table at level covering virt.
//
// A write into page that happened before linked returned true is reachable:
// a reclaimer marks the pointer before checking that the table is empty, so
// it sees the write and gives up. While the pointer is marked, linked waits
// for the reclaimer to decide.
func (t *PageTree) linked(virt hostarch.VirtPageNumber, level int, page hostarch.PhysPageNumber) bool {
	if level == t.topLevel() {
		return page == t.root
	}
	for {
		p, ok := t.pointerTo(virt, level)
		if !ok || p.To != page {
			return false
		}
		if !p.Reserved {
			return true
		}
		sync.Goyield()
	}
}

// split replaces leaf, found at index of tbl (a table at level > 0), with a
// new child table of leaves covering the same pages with the same
// attributes. If the entry no longer holds leaf the new table is discarded;
// the caller must reload the entry either way.
func (t *PageTree) split(tbl *PTEs, level, index int, leaf pte.Leaf) error {
	child, err := t.newTable()
	if err != nil {
		return err
	}
	span := t.mode.EntrySpan(level - 1)
	ctbl, g := t.table(child)
	// child is not yet reachable.
	for i := range ctbl {
		l := leaf
		l.To = leaf.To.Add(uint64(i) * span)
		ctbl[i].RacyStore(t.arch.PTEToNum(l))
	}
	g.Release()

	if _, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
		if cur != pte.Entry(leaf) {
			return nil, false
		}
		return pte.Pointer{To: child}, true
	}); !ok {
		t.freeTable(child)
		warnings.Debugf("Leaf %v changed while being split.", leaf)
		return nil
	}
	log.Debugf("Split %v into table %v.", leaf, child)
	return nil
}

// splitAt splits leaves containing virt until a leaf boundary lies at virt.
func (t *PageTree) splitAt(virt hostarch.VirtPageNumber) error {
	page, level := t.root, t.topLevel()
	for {
		tbl, g := t.table(page)
		index := virt.Index(level)
		switch e := tbl.Load(t.arch, index).(type) {
		case pte.Pointer:
			g.Release()
			if level == 0 {
				return nil
			}
			page, level = e.To, level-1
		case pte.Leaf:
			if level == 0 || uint64(virt)&(t.mode.EntrySpan(level)-1) == 0 {
				g.Release()
				return nil
			}
			err := t.split(tbl, level, index, e)
			g.Release()
			if err != nil {
				return err
			}
		default:
			g.Release()
			return nil
		}
	}
}
