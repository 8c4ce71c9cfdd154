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

// Package physmem defines the boundary between the paging core and the
// memory that backs it: a physical page allocator and a physical page
// accessor. It also provides the two accessors the kernel uses, a direct map
// and a buffer-backed arena.
package physmem

import (
	"errors"
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// ErrPhysicalPageAlloc is returned (possibly wrapped) when an allocator
// cannot satisfy a request.
var ErrPhysicalPageAlloc = errors.New("failed to allocate physical page")

// Allocator allocates runs of physical pages.
//
// Note that allocators may be called concurrently.
type Allocator interface {
	// Allocate allocates a single page. It is equivalent to
	// AllocateContiguous(1).
	Allocate() (hostarch.PhysPageNumber, error)

	// AllocateContiguous allocates count contiguous pages and returns the
	// first.
	AllocateContiguous(count uint64) (hostarch.PhysPageNumber, error)

	// Deallocate frees one page.
	//
	// Preconditions: The page was obtained from this allocator and is no
	// longer in use. It must not be accessed afterwards.
	Deallocate(page hostarch.PhysPageNumber)

	// DeallocateContiguous frees count pages starting at page.
	//
	// Preconditions: As for Deallocate, for every page in the run.
	DeallocateContiguous(page hostarch.PhysPageNumber, count uint64)
}

// AccessGuard scopes access to one physical page.
type AccessGuard interface {
	// Pointer returns a pointer to the first byte of the page. It is only
	// valid until Release is called.
	Pointer() unsafe.Pointer

	// Release ends the access. It performs no hardware action.
	Release()
}

// Accessor makes physical pages addressable.
//
// A guard bounds the lifetime of the pointer it yields; it does not grant
// exclusive access. Concurrent users of the same page must synchronize by
// other means.
type Accessor interface {
	// AccessPhysPage returns a guard for page.
	//
	// Preconditions: page is backed by memory reachable by this accessor.
	AccessPhysPage(page hostarch.PhysPageNumber) AccessGuard
}

// PageGuard is an AccessGuard over a fixed pointer whose Release is a no-op.
type PageGuard struct {
	ptr unsafe.Pointer
}

// Pointer implements AccessGuard.Pointer.
func (g PageGuard) Pointer() unsafe.Pointer {
	return g.ptr
}

// Release implements AccessGuard.Release.
func (PageGuard) Release() {}
