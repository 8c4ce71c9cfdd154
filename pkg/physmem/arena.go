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

package physmem

import (
	"fmt"
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// Arena is an Accessor over a page-aligned buffer standing in for a window
// of physical memory [Base, Base+Pages). It lets the paging core run on a
// host, where physical memory is not directly addressable.
type Arena struct {
	base  hostarch.PhysPageNumber
	mem   []byte
	unmap func() error
}

// NewArena returns an arena of pages physical pages, the first of which is
// base.
func NewArena(base hostarch.PhysPageNumber, pages uint64) (*Arena, error) {
	if pages == 0 {
		return nil, fmt.Errorf("empty arena at %v", base)
	}
	if _, ok := base.ForwardChecked(pages); !ok {
		return nil, fmt.Errorf("arena [%v, +%d) overflows", base, pages)
	}
	mem, unmap, err := allocArena(int(pages * hostarch.PageSize))
	if err != nil {
		return nil, fmt.Errorf("allocating arena of %d pages: %w", pages, err)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%hostarch.PageSize != 0 {
		panic(fmt.Sprintf("arena memory at %p is not page aligned", &mem[0]))
	}
	return &Arena{base: base, mem: mem, unmap: unmap}, nil
}

// Base returns the first physical page of the arena.
func (a *Arena) Base() hostarch.PhysPageNumber {
	return a.base
}

// Pages returns the number of pages in the arena.
func (a *Arena) Pages() uint64 {
	return uint64(len(a.mem)) / hostarch.PageSize
}

// Contains returns true if page lies inside the arena.
func (a *Arena) Contains(page hostarch.PhysPageNumber) bool {
	off, ok := a.base.StepsTo(page)
	return ok && off < a.Pages()
}

// AccessPhysPage implements Accessor.AccessPhysPage. It panics if page lies
// outside the arena.
func (a *Arena) AccessPhysPage(page hostarch.PhysPageNumber) AccessGuard {
	if !a.Contains(page) {
		panic(fmt.Sprintf("%v outside arena [%v, +%d)", page, a.base, a.Pages()))
	}
	off := uint64(page-a.base) * hostarch.PageSize
	return PageGuard{ptr: unsafe.Pointer(&a.mem[off])}
}

// Page returns the contents of page as a byte slice.
func (a *Arena) Page(page hostarch.PhysPageNumber) []byte {
	g := a.AccessPhysPage(page)
	defer g.Release()
	return unsafe.Slice((*byte)(g.Pointer()), hostarch.PageSize)
}

// Close releases the arena's memory. The arena must not be used afterwards.
func (a *Arena) Close() error {
	a.mem = nil
	if a.unmap == nil {
		return nil
	}
	return a.unmap()
}
