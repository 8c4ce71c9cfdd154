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

package riscv64

import (
	"fmt"

	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// satp layout.
const (
	satpPPNLen     = 44
	satpASIDOffset = 44
	satpASIDLen    = 16
	satpModeOffset = 60
	satpModeLen    = 4
)

// satp MODE field values.
const (
	satpModeBare = 0
	satpModeSv39 = 8
	satpModeSv48 = 9
	satpModeSv57 = 10
)

// SATP is the value of the supervisor address translation and protection
// register.
type SATP uint64

// MakeSATP returns the satp value selecting root as the translation root for
// asid under mode.
func MakeSATP(mode hostarch.PagingMode, asid hostarch.ASID, root hostarch.PhysPageNumber) SATP {
	if uint64(root) > bits.LowMask64(satpPPNLen) {
		panic(fmt.Sprintf("root %v does not fit in satp", root))
	}
	var m uint64
	switch mode {
	case hostarch.Layer3:
		m = satpModeSv39
	case hostarch.Layer4:
		m = satpModeSv48
	case hostarch.Layer5:
		m = satpModeSv57
	default:
		panic(fmt.Sprintf("unknown paging mode %v", mode))
	}
	return SATP(m<<satpModeOffset | uint64(asid)<<satpASIDOffset | uint64(root))
}

// Mode returns the paging mode and whether translation is enabled at all.
func (s SATP) Mode() (hostarch.PagingMode, bool) {
	switch bits.Field64(uint64(s), satpModeOffset, satpModeLen) {
	case satpModeSv39:
		return hostarch.Layer3, true
	case satpModeSv48:
		return hostarch.Layer4, true
	case satpModeSv57:
		return hostarch.Layer5, true
	default:
		return 0, false
	}
}

// ASID returns the address-space identifier field.
func (s SATP) ASID() hostarch.ASID {
	return hostarch.ASID(bits.Field64(uint64(s), satpASIDOffset, satpASIDLen))
}

// Root returns the physical page of the root table.
func (s SATP) Root() hostarch.PhysPageNumber {
	return hostarch.PhysPageNumber(bits.Field64(uint64(s), 0, satpPPNLen))
}

// WithASID returns s with its ASID field replaced.
func (s SATP) WithASID(asid hostarch.ASID) SATP {
	return SATP(bits.WithField64(uint64(s), satpASIDOffset, satpASIDLen, uint64(asid)))
}

// String implements fmt.Stringer.String.
func (s SATP) String() string {
	mode, ok := s.Mode()
	if !ok {
		return fmt.Sprintf("satp{bare %#x}", uint64(s))
	}
	return fmt.Sprintf("satp{%v asid=%d root=%v}", mode, s.ASID(), s.Root())
}
