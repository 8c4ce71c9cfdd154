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

// Package pte models page-table entries independently of their machine
// encoding.
//
// An entry is exactly one of Pointer, Leaf or Invalid. The binary layout of
// each is defined by the architecture through a Codec; nothing above the
// architecture layer may assume anything about it beyond this three-way
// split.
package pte

import (
	"fmt"
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// Entry is a decoded page-table entry: a Pointer, a Leaf or an Invalid.
type Entry interface {
	// isEntry seals the interface.
	isEntry()

	// Valid returns true if the MMU treats the entry as present.
	Valid() bool

	fmt.Stringer
}

// Pointer references a child page table.
type Pointer struct {
	// To is the physical page holding the child table.
	To hostarch.PhysPageNumber

	// Global marks the subtree as present in every address space.
	Global bool

	// Reserved is a software-defined flag ignored by the MMU.
	Reserved bool
}

// Leaf terminates a walk with a physical mapping.
type Leaf struct {
	// To is the first physical page of the mapping.
	To hostarch.PhysPageNumber

	// Privilege is the permitted access.
	Privilege hostarch.Privilege

	// Cache is the memory type.
	Cache hostarch.CacheType

	// Global marks the mapping as present in every address space.
	Global bool

	// User makes the mapping accessible from user mode.
	User bool

	// Accessed is set by hardware (or software) on first access.
	Accessed bool

	// Dirty is set by hardware (or software) on first store.
	Dirty bool

	// Reserved is a software-defined flag ignored by the MMU.
	Reserved bool
}

// Invalid is an entry the MMU treats as not present. Its payload is an
// opaque machine word that software may use freely, provided the bit the
// architecture uses as its valid flag stays clear.
type Invalid struct {
	Payload uintptr
}

func (Pointer) isEntry() {}
func (Leaf) isEntry()    {}
func (Invalid) isEntry() {}

// Valid implements Entry.Valid.
func (Pointer) Valid() bool { return true }

// Valid implements Entry.Valid.
func (Leaf) Valid() bool { return true }

// Valid implements Entry.Valid.
func (Invalid) Valid() bool { return false }

// String implements fmt.Stringer.String.
func (p Pointer) String() string {
	return fmt.Sprintf("Pointer{%v global=%v reserved=%v}", p.To, p.Global, p.Reserved)
}

// String implements fmt.Stringer.String.
func (l Leaf) String() string {
	return fmt.Sprintf("Leaf{%v %v %s g=%v u=%v a=%v d=%v r=%v}",
		l.To, l.Privilege, l.Cache.ShortString(), l.Global, l.User, l.Accessed, l.Dirty, l.Reserved)
}

// String implements fmt.Stringer.String.
func (i Invalid) String() string {
	return fmt.Sprintf("Invalid{%#x}", i.Payload)
}

// Default returns the state of a freshly initialized entry: Invalid with a
// null payload.
func Default() Entry {
	return Invalid{}
}

// InvalidFromPointer stashes p in an Invalid entry. p must be at least
// 2-byte aligned, since the lowest bit is reserved for the valid flag.
func InvalidFromPointer(p unsafe.Pointer) Invalid {
	if uintptr(p)&1 != 0 {
		panic(fmt.Sprintf("pointer %p is not 2-byte aligned", p))
	}
	return Invalid{Payload: uintptr(p)}
}

// Pointer returns the pointer previously stashed with InvalidFromPointer.
//
// The caller is responsible for keeping the referenced object alive; an
// entry payload is not visible to the garbage collector.
func (i Invalid) Pointer() unsafe.Pointer {
	if i.Payload&1 != 0 {
		panic(fmt.Sprintf("payload %#x is not 2-byte aligned", i.Payload))
	}
	return unsafe.Pointer(i.Payload)
}

// Codec converts entries to and from their machine words.
//
// Implementations must satisfy NumToPTE(PTEToNum(e)) == e for every
// representable entry e.
type Codec interface {
	// PTEToNum encodes e.
	PTEToNum(e Entry) uint64

	// NumToPTE decodes a machine word.
	NumToPTE(num uint64) Entry

	// MaxPhysPageNumber returns the largest page a Pointer or Leaf can
	// reference.
	MaxPhysPageNumber() hostarch.PhysPageNumber
}
