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

// Package boot describes what the bootloader hands to the kernel.
package boot

import (
	"fmt"
	"iter"
	"strings"

	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/rand"
)

// MemoryType classifies a region of the physical memory map.
type MemoryType int

const (
	// Unused memory is free for the kernel to allocate.
	Unused MemoryType = iota

	// Reserved memory must never be touched.
	Reserved

	// BootloaderReserved memory holds bootloader data. It stays mapped
	// until the kernel has consumed that data.
	BootloaderReserved
)

var memoryTypeNames = [...]string{
	Unused:             "unused",
	Reserved:           "reserved",
	BootloaderReserved: "bootloader-reserved",
}

// String implements fmt.Stringer.String.
func (t MemoryType) String() string {
	if t >= 0 && int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}
	return fmt.Sprintf("MemoryType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (t MemoryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (t *MemoryType) UnmarshalText(b []byte) error {
	for i, name := range memoryTypeNames {
		if strings.EqualFold(string(b), name) {
			*t = MemoryType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown memory type %q", b)
}

// MemoryRegion is one entry of the physical memory map.
type MemoryRegion struct {
	Base  hostarch.PhysPageNumber `toml:"base" yaml:"base"`
	Pages uint64                  `toml:"pages" yaml:"pages"`
	Type  MemoryType              `toml:"type" yaml:"type"`
}

// String implements fmt.Stringer.String.
func (r MemoryRegion) String() string {
	return fmt.Sprintf("%v+%d (%v)", r.Base, r.Pages, r.Type)
}

// PhysVirtMap is a physically and virtually contiguous range.
type PhysVirtMap struct {
	Phys  hostarch.PhysPageNumber
	Virt  hostarch.VirtPageNumber
	Pages uint64
}

// String implements fmt.Stringer.String.
func (m PhysVirtMap) String() string {
	return fmt.Sprintf("%v+%d -> %v", m.Virt, m.Pages, m.Phys)
}

// KernelAddress locates the segments of the kernel image.
type KernelAddress struct {
	// Text is the executable code.
	Text PhysVirtMap

	// RO is read-only data.
	RO PhysVirtMap

	// Data is writable data.
	Data PhysVirtMap

	// BL is writable data only needed while bootloader structures are in
	// use.
	BL PhysVirtMap
}

// Params is the hand-off from the bootloader.
type Params interface {
	// TakeRand returns the early random number generator. It may only be
	// called once.
	TakeRand() *rand.RNG

	// Accessor returns an accessor for all physical memory.
	Accessor() physmem.Accessor

	// MemoryMap yields the physical memory map.
	MemoryMap() iter.Seq[MemoryRegion]

	// ExtraMaps yields ranges the kernel must map in addition to its own
	// image.
	ExtraMaps() iter.Seq[PhysVirtMap]

	// KernelAddress locates the kernel image.
	KernelAddress() KernelAddress
}
