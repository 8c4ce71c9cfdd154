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
	"iter"

	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// Translate returns the leaf mapping virt and the physical page virt
// translates to.
func (t *PageTree) Translate(virt hostarch.VirtPageNumber) (pte.Leaf, hostarch.PhysPageNumber, bool) {
	if !virt.IsValid(t.mode) {
		return pte.Leaf{}, 0, false
	}
	t.enter()
	defer t.exit()
	page, level := t.root, t.topLevel()
	for {
		tbl, g := t.table(page)
		e := tbl.Load(t.arch, virt.Index(level))
		g.Release()
		switch e := e.(type) {
		case pte.Pointer:
			if level == 0 {
				return pte.Leaf{}, 0, false
			}
			page, level = e.To, level-1
		case pte.Leaf:
			offset := uint64(virt) - bits.AlignDown64(uint64(virt), t.mode.EntrySpan(level))
			return e, e.To.Add(offset), true
		default:
			return pte.Leaf{}, 0, false
		}
	}
}

// Mapping is a leaf of a page tree.
type Mapping struct {
	// Virt is the first page mapped by the leaf.
	Virt hostarch.VirtPageNumber

	// Pages is the number of pages mapped by the leaf.
	Pages uint64

	// Level is the level of the table holding the leaf.
	Level int

	// Leaf is the entry itself.
	Leaf pte.Leaf
}

// String implements fmt.Stringer.String.
func (m Mapping) String() string {
	return fmt.Sprintf("%v+%d -> %v", m.Virt, m.Pages, m.Leaf)
}

// Mappings yields every leaf of the tree in ascending virtual order, lower
// half first.
func (t *PageTree) Mappings() iter.Seq[Mapping] {
	return func(yield func(Mapping) bool) {
		t.enter()
		defer t.exit()
		t.mappings(t.root, t.topLevel(), 0, yield)
	}
}

func (t *PageTree) mappings(page hostarch.PhysPageNumber, level int, base uint64, yield func(Mapping) bool) bool {
	tbl, g := t.table(page)
	defer g.Release()
	span := t.mode.EntrySpan(level)
	for i, e := range tbl.Iter(t.arch) {
		start := base + uint64(i)*span
		switch e := e.(type) {
		case pte.Pointer:
			if level > 0 && !t.mappings(e.To, level-1, start, yield) {
				return false
			}
		case pte.Leaf:
			if !yield(Mapping{Virt: t.canonical(start), Pages: span, Level: level, Leaf: e}) {
				return false
			}
		}
	}
	return true
}

// Tables yields the page of every table in the tree, root first, parents
// before children.
func (t *PageTree) Tables() iter.Seq[hostarch.PhysPageNumber] {
	return func(yield func(hostarch.PhysPageNumber) bool) {
		t.enter()
		defer t.exit()
		t.tables(t.root, t.topLevel(), yield)
	}
}

func (t *PageTree) tables(page hostarch.PhysPageNumber, level int, yield func(hostarch.PhysPageNumber) bool) bool {
	if !yield(page) {
		return false
	}
	if level == 0 {
		return true
	}
	tbl, g := t.table(page)
	defer g.Release()
	for _, e := range tbl.Iter(t.arch) {
		if p, ok := e.(pte.Pointer); ok && !t.tables(p.To, level-1, yield) {
			return false
		}
	}
	return true
}
