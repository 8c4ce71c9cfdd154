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
	"errors"
	"fmt"

	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/cleanup"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pte"
	"rvkernel.dev/rvkernel/pkg/sync"
)

// MapOpts are the attributes of a new mapping.
type MapOpts struct {
	// Privilege is the permitted access.
	Privilege hostarch.Privilege

	// Cache is the memory type.
	Cache hostarch.CacheType

	// Global marks the mapping as present in every address space.
	Global bool

	// User makes the mapping accessible from user mode.
	User bool

	// Accessed and Dirty preset the hardware-managed bits. Hardware that
	// does not update them raises a fault on the first access (or store)
	// through a leaf that has them clear.
	Accessed bool
	Dirty    bool

	// Replace allows Map to overwrite existing leaves.
	Replace bool

	// Huge allows Map to install leaves above the lowest level where
	// both addresses are aligned to, and the range covers, a whole entry.
	Huge bool
}

// leaf returns the leaf mapping to with o's attributes.
func (o MapOpts) leaf(to hostarch.PhysPageNumber) pte.Leaf {
	return pte.Leaf{
		To:        to,
		Privilege: o.Privilege,
		Cache:     o.Cache,
		Global:    o.Global,
		User:      o.User,
		Accessed:  o.Accessed,
		Dirty:     o.Dirty,
	}
}

// beforeInstallTable, if set, is called after Map allocates an intermediate
// table and before it tries to install it.
var beforeInstallTable func(tbl *PTEs, index int)

// errStale is returned by a mapper that wrote into a table which was
// unlinked concurrently. The write has been undone, and the rest of the
// range must be walked again from the root.
var errStale = errors.New("table unlinked during walk")

// Map maps length pages starting at virt to the physical pages starting at
// phys.
//
// Unless opts.Replace is set, Map fails with ErrMappingConflict if any page
// of the range is already mapped. If Map fails, the tree is left as it was
// before the call, although intermediate tables allocated along the way may
// be reclaimed lazily.
func (t *PageTree) Map(phys hostarch.PhysPageNumber, virt hostarch.VirtPageNumber, length uint64, opts MapOpts) error {
	if err := t.checkRange(virt, length); err != nil {
		return err
	}
	if last, ok := phys.ForwardChecked(length - 1); !ok || last > t.arch.MaxPhysPageNumber() {
		return fmt.Errorf("%w: physical %v+%d beyond %v", ErrInvalidRange, phys, length, t.arch.MaxPhysPageNumber())
	}
	t.enter()
	defer t.exit()
	if !opts.Replace {
		if v, e, ok := t.firstMapped(virt, length); ok {
			return fmt.Errorf("%w: %v maps %v", ErrMappingConflict, v, e)
		}
	}

	m := mapper{t: t, opts: opts}
	cu := cleanup.Make(func() { m.rollback(virt, length) })
	defer cu.Clean()
	v, p, n := virt, phys, length
	for n > 0 {
		done, err := m.walk(t.root, t.topLevel(), v, p, n)
		if err != nil && !errors.Is(err, errStale) {
			return fmt.Errorf("mapping %v+%d to %v: %w", virt, length, phys, err)
		}
		if err != nil {
			warnings.Debugf("Restarting map of %v+%d at %v: %v.", virt, length, v.Add(done), err)
		}
		v, p, n = v.Add(done), p.Add(done), n-done
	}
	cu.Release()
	return nil
}

// installed records one leaf written by a mapper.
type installed struct {
	virt  hostarch.VirtPageNumber
	level int
	prev  pte.Entry
	leaf  pte.Leaf
}

// mapper installs the leaves of a single Map call.
type mapper struct {
	t         *PageTree
	opts      MapOpts
	installed []installed
}

// walk maps [virt, virt+n) to phys under page, a table at level. It returns
// the number of pages mapped, which is less than n only on error.
func (m *mapper) walk(page hostarch.PhysPageNumber, level int, virt hostarch.VirtPageNumber, phys hostarch.PhysPageNumber, n uint64) (uint64, error) {
	t := m.t
	tbl, g := t.table(page)
	defer g.Release()
	var done uint64
	for done < n {
		pages := t.entryPages(virt, n-done, level)
		index := virt.Index(level)
		leaf := false
		if level == 0 || m.huge(level, phys, pages) {
			var err error
			if leaf, err = m.install(tbl, page, level, index, virt, phys); err != nil {
				return done, err
			}
		}
		if !leaf {
			child, err := m.descend(tbl, page, level, index, virt)
			if err != nil {
				return done, err
			}
			sub, err := m.walk(child, level-1, virt, phys, pages)
			if err != nil {
				return done + sub, err
			}
		}
		virt = virt.Add(pages)
		phys = phys.Add(pages)
		done += pages
	}
	return done, nil
}

// huge returns true if pages starting at phys can be mapped by one leaf at
// level.
func (m *mapper) huge(level int, phys hostarch.PhysPageNumber, pages uint64) bool {
	span := m.t.mode.EntrySpan(level)
	return m.opts.Huge && pages == span && bits.IsAligned64(uint64(phys), span)
}

// install writes a leaf for phys at index of tbl, the table in page. It
// returns false without error if the slot holds a pointer to a lower table,
// which the caller should descend into instead.
func (m *mapper) install(tbl *PTEs, page hostarch.PhysPageNumber, level, index int, virt hostarch.VirtPageNumber, phys hostarch.PhysPageNumber) (bool, error) {
	t := m.t
	leaf := m.opts.leaf(phys)
	prev, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
		switch cur.(type) {
		case pte.Invalid:
			return leaf, true
		case pte.Leaf:
			return leaf, m.opts.Replace
		default:
			return nil, false
		}
	})
	if !ok {
		if _, isPointer := prev.(pte.Pointer); isPointer && level > 0 {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v maps %v", ErrMappingConflict, virt, prev)
	}
	if !t.linked(virt, level, page) {
		tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
			return prev, cur == pte.Entry(leaf)
		})
		return false, fmt.Errorf("%w: leaf for %v in %v", errStale, virt, page)
	}
	m.installed = append(m.installed, installed{virt: virt, level: level, prev: prev, leaf: leaf})
	return true, nil
}

// descend returns the child table at index of tbl, the table in page at
// level > 0, creating it if necessary.
func (m *mapper) descend(tbl *PTEs, page hostarch.PhysPageNumber, level, index int, virt hostarch.VirtPageNumber) (hostarch.PhysPageNumber, error) {
	t := m.t
	for {
		switch e := tbl.Load(t.arch, index).(type) {
		case pte.Pointer:
			return e.To, nil
		case pte.Leaf:
			if !m.opts.Replace {
				return 0, fmt.Errorf("%w: %v maps %v", ErrMappingConflict, virt, e)
			}
			if err := t.split(tbl, level, index, e); err != nil {
				return 0, err
			}
		case pte.Invalid:
			child, err := t.newTable()
			if err != nil {
				return 0, err
			}
			if beforeInstallTable != nil {
				beforeInstallTable(tbl, index)
			}
			prev, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
				if _, ok := cur.(pte.Invalid); !ok {
					return nil, false
				}
				return pte.Pointer{To: child}, true
			})
			if !ok {
				// Another walker installed an entry first. Adopt its table.
				t.freeTable(child)
				warnings.Debugf("Lost race installing table for %v, found %v.", virt, prev)
				if p, ok := prev.(pte.Pointer); ok {
					return p.To, nil
				}
				continue
			}
			if !t.linked(virt, level, page) {
				t.unlinkChild(tbl, index, child)
				return 0, fmt.Errorf("%w: table for %v in %v", errStale, virt, page)
			}
			log.Debugf("Installed level %d table %v for %v.", level-1, child, virt)
			return child, nil
		}
	}
}

// unlinkChild removes the pointer to child, a table installed at index of
// tbl after tbl itself was unlinked, and retires child. Walkers that found
// child through tbl may still be inside it. If a reclaimer got to the
// pointer first, it retires child instead.
func (t *PageTree) unlinkChild(tbl *PTEs, index int, child hostarch.PhysPageNumber) {
	want := pte.Entry(pte.Pointer{To: child})
	for {
		prev, ok := tbl.UpdateAt(t.arch, index, func(cur pte.Entry) (pte.Entry, bool) {
			return pte.Invalid{}, cur == want
		})
		if ok {
			t.retire(child)
			return
		}
		if p, isPointer := prev.(pte.Pointer); !isPointer || p.To != child {
			return
		}
		// Marked by a reclaimer, which either unlinks it or clears the mark.
		sync.Goyield()
	}
}

// rollback restores the entries written by m, then reclaims the tables in
// [virt, virt+n) left empty.
func (m *mapper) rollback(virt hostarch.VirtPageNumber, n uint64) {
	t := m.t
	for i := len(m.installed) - 1; i >= 0; i-- {
		in := m.installed[i]
		page, ok := t.tableAt(in.virt, in.level)
		if !ok {
			continue
		}
		tbl, g := t.table(page)
		tbl.UpdateAt(t.arch, in.virt.Index(in.level), func(cur pte.Entry) (pte.Entry, bool) {
			return in.prev, cur == pte.Entry(in.leaf)
		})
		g.Release()
	}
	u := unmapper{t: t}
	if err := u.walk(t.root, t.topLevel(), virt, n); err != nil {
		panic(fmt.Sprintf("reclaiming tables in %v+%d failed: %v", virt, n, err))
	}
	log.Debugf("Rolled back %d entries in %v+%d.", len(m.installed), virt, n)
}
