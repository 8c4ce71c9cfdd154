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

	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// Unmap removes the mappings of length pages starting at virt.
//
// Unmap fails with ErrUnmappedRange, without changing the tree, if any page
// of the range is not mapped. Huge leaves that straddle either end of the
// range are split so that pages outside the range stay mapped. Tables left
// without valid entries are freed.
func (t *PageTree) Unmap(virt hostarch.VirtPageNumber, length uint64) error {
	if err := t.checkRange(virt, length); err != nil {
		return err
	}
	t.enter()
	defer t.exit()
	if v, ok := t.firstUnmapped(virt, length); ok {
		return fmt.Errorf("%w: %v in %v+%d", ErrUnmappedRange, v, virt, length)
	}
	if err := t.splitAt(virt); err != nil {
		return fmt.Errorf("unmapping %v+%d: %w", virt, length, err)
	}
	if err := t.splitAt(virt.Add(length)); err != nil {
		return fmt.Errorf("unmapping %v+%d: %w", virt, length, err)
	}

	u := unmapper{t: t, clear: true}
	if err := u.walk(t.root, t.topLevel(), virt, length); err != nil {
		return fmt.Errorf("unmapping %v+%d: %w", virt, length, err)
	}
	if u.missing != 0 {
		return fmt.Errorf("%w: %d pages of %v+%d were unmapped concurrently", ErrUnmappedRange, u.missing, virt, length)
	}
	return nil
}

// unmapper clears leaves in a range and frees the tables this empties.
type unmapper struct {
	t *PageTree

	// clear is set to clear leaves. Otherwise only tables that are already
	// empty are freed.
	clear bool

	// missing is the number of pages found unmapped while clearing.
	missing uint64
}

// walk processes [virt, virt+n) under page, a table at level.
func (u *unmapper) walk(page hostarch.PhysPageNumber, level int, virt hostarch.VirtPageNumber, n uint64) error {
	t := u.t
	tbl, g := t.table(page)
	defer g.Release()
	for n > 0 {
		pages := t.entryPages(virt, n, level)
		index := virt.Index(level)
		switch e := tbl.Load(t.arch, index).(type) {
		case pte.Invalid:
			if u.clear {
				u.missing += pages
			}
		case pte.Leaf:
			if !u.clear {
				break
			}
			if pages != t.mode.EntrySpan(level) {
				if err := t.split(tbl, level, index, e); err != nil {
					return err
				}
				continue
			}
			if _, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
				return pte.Invalid{}, cur == pte.Entry(e)
			}); !ok {
				continue
			}
		case pte.Pointer:
			if level == 0 {
				panic(fmt.Sprintf("pointer %v in leaf table %v", e, page))
			}
			if err := u.walk(e.To, level-1, virt, pages); err != nil {
				return err
			}
			t.reclaim(tbl, index, e)
		}
		virt = virt.Add(pages)
		n -= pages
	}
	return nil
}

// reclaim unlinks the table p points to, found at index of tbl, if it has no
// valid entries, and retires it.
//
// The pointer is first marked with its Reserved bit so that mappers which
// already hold the table can tell whether their writes survived (see
// linked). If the table turns out to be in use the mark is removed.
func (t *PageTree) reclaim(tbl *PTEs, index int, p pte.Pointer) {
	if p.Reserved || !t.emptyTable(p.To) {
		return
	}
	marked := p
	marked.Reserved = true
	if _, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
		return marked, cur == pte.Entry(p)
	}); !ok {
		return
	}

	// Only the holder of the mark changes a marked entry.
	next := pte.Entry(pte.Invalid{})
	if !t.emptyTable(p.To) {
		next = p
	}
	if _, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
		return next, cur == pte.Entry(marked)
	}); !ok {
		panic(fmt.Sprintf("marked pointer to %v changed under reclaim", p.To))
	}
	if next == pte.Entry(p) {
		warnings.Debugf("Table %v was repopulated while being reclaimed.", p.To)
		return
	}
	t.retire(p.To)
	log.Debugf("Reclaimed table %v.", p.To)
}

// emptyTable returns true if the table in page has no valid entries.
func (t *PageTree) emptyTable(page hostarch.PhysPageNumber) bool {
	tbl, g := t.table(page)
	defer g.Release()
	return tbl.Empty(t.arch)
}
