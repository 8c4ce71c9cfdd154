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
	"iter"
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/atomicbitops"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// PTEs is a page-sized table of entries.
//
// Each slot is read and written atomically, so the MMU and concurrent
// walkers never observe a torn entry. All mutation goes through UpdateAt.
type PTEs [hostarch.EntriesPerTable]atomicbitops.Uint64

// PTEs must occupy exactly one page.
var (
	_ [hostarch.PageSize - unsafe.Sizeof(PTEs{})]struct{}
	_ [unsafe.Sizeof(PTEs{}) - hostarch.PageSize]struct{}
)

// Init sets every entry to pte.Default().
//
// Preconditions: p is not yet reachable from any page tree.
func (p *PTEs) Init(c pte.Codec) {
	v := c.PTEToNum(pte.Default())
	for i := range p {
		p[i].RacyStore(v)
	}
}

// Load decodes the entry at index.
func (p *PTEs) Load(c pte.Codec, index int) pte.Entry {
	return c.NumToPTE(p[index].Load())
}

// Iter yields each index with its decoded entry, in index order. Entries are
// loaded as the iteration reaches them.
func (p *PTEs) Iter(c pte.Codec) iter.Seq2[int, pte.Entry] {
	return func(yield func(int, pte.Entry) bool) {
		for i := range p {
			if !yield(i, p.Load(c, i)) {
				return
			}
		}
	}
}

// UpdateAt atomically replaces the entry at index with the result of f.
//
// f receives the current entry and returns the entry to install, or false to
// leave the slot unchanged. If another writer changes the slot between the
// load and the store, f is called again with the new value, so it must be
// safe to call repeatedly.
//
// UpdateAt returns the replaced entry and true if f's result was installed,
// or the current entry and false if f declined.
func (p *PTEs) UpdateAt(c pte.Codec, index int, f func(cur pte.Entry) (pte.Entry, bool)) (pte.Entry, bool) {
	num, ok := p[index].Update(func(cur uint64) (uint64, bool) {
		next, ok := f(c.NumToPTE(cur))
		if !ok {
			return 0, false
		}
		return c.PTEToNum(next), true
	})
	return c.NumToPTE(num), ok
}

// Empty returns true if no entry is valid.
//
// The result is a snapshot: a concurrent writer may install an entry as soon
// as Empty has passed over its slot.
func (p *PTEs) Empty(c pte.Codec) bool {
	for _, e := range p.Iter(c) {
		if e.Valid() {
			return false
		}
	}
	return true
}
