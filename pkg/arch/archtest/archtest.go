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

// Package archtest provides an architecture for running the paging core on
// a development host.
//
// It uses the real RISC-V entry layout, so tables built under it are
// bit-identical to those built on hardware. Operations that would touch
// hardware state panic; tests that need them install hooks.
package archtest

import (
	"rvkernel.dev/rvkernel/pkg/arch/riscv64"
	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// MaxAddressSpace is the largest ASID reported by Arch.
const MaxAddressSpace hostarch.ASID = 0xffff

// Arch is a host-side architecture.
type Arch struct {
	riscv64.Codec

	// Mode is returned by DefaultPagingMode.
	Mode hostarch.PagingMode

	// OnFlush, if set, is called by FlushMMU instead of panicking.
	OnFlush func(t hostarch.FlushTarget)

	// OnSetMMU, if set, is called by SetMMU instead of panicking.
	OnSetMMU func(asid hostarch.ASID, mode hostarch.PagingMode, root hostarch.PhysPageNumber) bool
}

// New returns an Arch with Layer3 as its default paging mode and no hooks.
func New() Arch {
	return Arch{Mode: hostarch.Layer3}
}

// Halt implements arch.Arch.Halt.
func (Arch) Halt() {
	panic("unimplemented: Halt")
}

// FlushMMU implements arch.Arch.FlushMMU.
func (a Arch) FlushMMU(t hostarch.FlushTarget) {
	if a.OnFlush == nil {
		panic("unimplemented: FlushMMU")
	}
	a.OnFlush(t)
}

// SetMMU implements arch.Arch.SetMMU.
func (a Arch) SetMMU(asid hostarch.ASID, mode hostarch.PagingMode, root hostarch.PhysPageNumber) bool {
	if a.OnSetMMU == nil {
		panic("unimplemented: SetMMU")
	}
	return a.OnSetMMU(asid, mode, root)
}

// MaxAddressSpace implements arch.Arch.MaxAddressSpace.
func (Arch) MaxAddressSpace() hostarch.ASID {
	return MaxAddressSpace
}

// DefaultPagingMode implements arch.Arch.DefaultPagingMode.
func (a Arch) DefaultPagingMode() hostarch.PagingMode {
	return a.Mode
}

// Rand implements arch.Arch.Rand. The host has no counters to mix.
func (Arch) Rand() uint64 {
	return 0
}

// MMU records SetMMU and FlushMMU calls for tests.
type MMU struct {
	// Reject makes SetMMU report failure.
	Reject bool

	// SATP is the last value accepted by SetMMU.
	SATP riscv64.SATP

	// Flushes holds every flush target in call order.
	Flushes []hostarch.FlushTarget
}

// Install returns a copy of a whose hooks record into m.
func (m *MMU) Install(a Arch) Arch {
	a.OnFlush = func(t hostarch.FlushTarget) {
		m.Flushes = append(m.Flushes, t)
	}
	a.OnSetMMU = func(asid hostarch.ASID, mode hostarch.PagingMode, root hostarch.PhysPageNumber) bool {
		if m.Reject {
			return false
		}
		m.SATP = riscv64.MakeSATP(mode, asid, root)
		return true
	}
	return a
}
