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

// Package hostarch describes the page-granular address model shared by the
// paging core and the architecture layer: page sizes, physical and virtual
// page numbers, paging modes and page attributes.
package hostarch

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page in bytes.
	PageSize = 1 << PageShift

	// WordSize is the size of a page-table entry in bytes.
	WordSize = 8

	// EntriesPerTable is the number of entries in one page-sized table.
	EntriesPerTable = PageSize / WordSize

	// LevelBits is the number of virtual page number bits consumed by each
	// level of a page table.
	LevelBits = 9

	// pageNumberBits is the width of a page number on a 64-bit machine.
	pageNumberBits = 64 - PageShift
)

// Page is a single page of memory.
type Page [PageSize]byte

// ASID is a hardware address-space identifier.
type ASID uint16
