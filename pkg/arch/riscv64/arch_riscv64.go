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

//go:build riscv64

package riscv64

import (
	mbits "math/bits"

	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
)

// Arch is the RISC-V64 hardware implementation of the architecture layer.
//
// All methods except the codec and the getters execute privileged
// instructions and must run in supervisor mode.
type Arch struct {
	Codec
}

// Implemented in asm_riscv64.s.
func wfi()
func sfenceVMA()
func sfenceVMAASID(asid uint64)
func sfenceVMAAddr(addr uint64)
func sfenceVMAAddrASID(addr, asid uint64)
func swapSATP(v uint64) (old, cur uint64)
func latchSATP(v uint64) (latched uint64)
func readCounters() (cycle, time, instret uint64)

// Halt parks the hart in a low-power wait loop. It never returns.
func (Arch) Halt() {
	log.Warningf("Halting the CPU indefinitely.")
	for {
		wfi()
	}
}

// FlushMMU invalidates cached translations selected by t.
func (Arch) FlushMMU(t hostarch.FlushTarget) {
	log.Debugf("Flushing MMU: %v", t)
	switch {
	case t.HasASID && t.HasAddr:
		sfenceVMAAddrASID(t.Addr, uint64(t.ASID))
	case t.HasASID:
		sfenceVMAASID(uint64(t.ASID))
	case t.HasAddr:
		sfenceVMAAddr(t.Addr)
	default:
		sfenceVMA()
	}
}

// SetMMU installs root as the translation root of asid under mode.
//
// The write is read back; if satp did not latch the requested value the
// previous value is restored and SetMMU returns false. The caller must flush
// afterwards, and root must map the kernel text at the same address as the
// current tree does.
func (Arch) SetMMU(asid hostarch.ASID, mode hostarch.PagingMode, root hostarch.PhysPageNumber) bool {
	want := MakeSATP(mode, asid, root)
	log.Debugf("Setting MMU: %v", want)
	old, cur := swapSATP(uint64(want))
	if SATP(cur) != want {
		log.Debugf("satp rejected %v (read back %#x), restored %v", want, cur, SATP(old))
		return false
	}
	return true
}

// MaxAddressSpace returns the largest ASID the hart implements.
func (Arch) MaxAddressSpace() hostarch.ASID {
	latched := latchSATP(uint64(SATP(0).WithASID(^hostarch.ASID(0))))
	return SATP(latched).ASID()
}

// DefaultPagingMode returns Sv39, which every paging-capable RV64 hart
// implements.
func (Arch) DefaultPagingMode() hostarch.PagingMode {
	return hostarch.Layer3
}

// Rand mixes the cycle, time and retired-instruction counters. It is only
// guaranteed to change over time, not to be unpredictable.
func (Arch) Rand() uint64 {
	cycle, time, instret := readCounters()
	return cycle ^ mbits.RotateLeft64(time, 21) ^ mbits.RotateLeft64(instret, 42)
}
