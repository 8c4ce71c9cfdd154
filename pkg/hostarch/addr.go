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

package hostarch

import (
	"fmt"

	"rvkernel.dev/rvkernel/pkg/bits"
)

// PhysPageNumber is the index of a physical page (physical address divided
// by PageSize).
type PhysPageNumber uint64

// PhysPageNumberFromAddr returns the page number of the page-aligned
// physical address addr. It panics if addr is not aligned.
func PhysPageNumberFromAddr(addr uint64) PhysPageNumber {
	if !bits.IsAligned64(addr, PageSize) {
		panic(fmt.Sprintf("unaligned physical address %#x", addr))
	}
	return PhysPageNumber(addr >> PageShift)
}

// Addr returns the physical address of the first byte of the page.
func (p PhysPageNumber) Addr() uint64 {
	return uint64(p) << PageShift
}

// Add returns p advanced by n pages.
func (p PhysPageNumber) Add(n uint64) PhysPageNumber {
	return p + PhysPageNumber(n)
}

// Sub returns p moved back by n pages.
func (p PhysPageNumber) Sub(n uint64) PhysPageNumber {
	return p - PhysPageNumber(n)
}

// Next returns the successor of p.
func (p PhysPageNumber) Next() PhysPageNumber {
	return p + 1
}

// Prev returns the predecessor of p.
func (p PhysPageNumber) Prev() PhysPageNumber {
	return p - 1
}

// ForwardChecked returns p advanced by n pages. ok is false if the result
// does not fit in a page number.
func (p PhysPageNumber) ForwardChecked(n uint64) (PhysPageNumber, bool) {
	r := uint64(p) + n
	if r < uint64(p) {
		return 0, false
	}
	return PhysPageNumber(r), true
}

// BackwardChecked returns p moved back by n pages. ok is false on underflow.
func (p PhysPageNumber) BackwardChecked(n uint64) (PhysPageNumber, bool) {
	if n > uint64(p) {
		return 0, false
	}
	return p - PhysPageNumber(n), true
}

// StepsTo returns the number of pages in [p, end). ok is false if end < p.
func (p PhysPageNumber) StepsTo(end PhysPageNumber) (uint64, bool) {
	if end < p {
		return 0, false
	}
	return uint64(end - p), true
}

// String implements fmt.Stringer.String.
func (p PhysPageNumber) String() string {
	return fmt.Sprintf("ppn:%#x", uint64(p))
}

// VirtPageNumber is the index of a virtual page (virtual address divided by
// PageSize). Page numbers of high-half addresses keep their sign extension,
// so the page number space is pageNumberBits wide.
type VirtPageNumber uint64

const (
	// MinVirtPageNumber is the lowest representable virtual page number.
	MinVirtPageNumber VirtPageNumber = 0

	// MaxVirtPageNumber is the highest representable virtual page number.
	MaxVirtPageNumber VirtPageNumber = ^VirtPageNumber(0) >> PageShift
)

// VirtPageNumberFromAddr returns the page number of the page-aligned virtual
// address addr. It panics if addr is not aligned.
func VirtPageNumberFromAddr(addr uint64) VirtPageNumber {
	if !bits.IsAligned64(addr, PageSize) {
		panic(fmt.Sprintf("unaligned virtual address %#x", addr))
	}
	return VirtPageNumber(addr >> PageShift)
}

// Addr returns the virtual address of the first byte of the page.
func (v VirtPageNumber) Addr() uint64 {
	return uint64(v) << PageShift
}

// Add returns v advanced by n pages.
func (v VirtPageNumber) Add(n uint64) VirtPageNumber {
	return v + VirtPageNumber(n)
}

// Sub returns v moved back by n pages.
func (v VirtPageNumber) Sub(n uint64) VirtPageNumber {
	return v - VirtPageNumber(n)
}

// Next returns the successor of v.
func (v VirtPageNumber) Next() VirtPageNumber {
	return v + 1
}

// Prev returns the predecessor of v.
func (v VirtPageNumber) Prev() VirtPageNumber {
	return v - 1
}

// ForwardChecked returns v advanced by n pages. ok is false if the result
// exceeds MaxVirtPageNumber.
func (v VirtPageNumber) ForwardChecked(n uint64) (VirtPageNumber, bool) {
	r := uint64(v) + n
	if r < uint64(v) || VirtPageNumber(r) > MaxVirtPageNumber {
		return 0, false
	}
	return VirtPageNumber(r), true
}

// BackwardChecked returns v moved back by n pages. ok is false on underflow.
func (v VirtPageNumber) BackwardChecked(n uint64) (VirtPageNumber, bool) {
	if n > uint64(v) {
		return 0, false
	}
	return v - VirtPageNumber(n), true
}

// StepsTo returns the number of pages in [v, end). ok is false if end < v.
func (v VirtPageNumber) StepsTo(end VirtPageNumber) (uint64, bool) {
	if end < v {
		return 0, false
	}
	return uint64(end - v), true
}

// IsValid returns true if v may be mapped in a page tree using mode.
//
// Page zero and the topmost page are never valid. Otherwise v must be
// canonical: every page number bit at and above the highest bit covered by
// the mode's virtual address width must equal that bit.
func (v VirtPageNumber) IsValid(mode PagingMode) bool {
	if v == MinVirtPageNumber || v >= MaxVirtPageNumber {
		return false
	}
	// Index of the highest used page number bit.
	top := mode.VirtBits() - 1 - PageShift
	upper := uint64(v) >> uint64(top)
	return upper == 0 || upper == bits.LowMask64(pageNumberBits-top)
}

// Index returns the index of v in a table at the given level. Level 0 is the
// leaf level.
func (v VirtPageNumber) Index(level int) int {
	return int(bits.Field64(uint64(v), level*LevelBits, LevelBits))
}

// String implements fmt.Stringer.String.
func (v VirtPageNumber) String() string {
	return fmt.Sprintf("vpn:%#x", uint64(v))
}
