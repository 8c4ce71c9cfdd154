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

import "fmt"

// FlushTarget selects the cached translations invalidated by an MMU flush.
// The zero value flushes everything.
type FlushTarget struct {
	// ASID restricts the flush to one address space if HasASID is set.
	ASID    ASID
	HasASID bool

	// Addr restricts the flush to the page containing Addr if HasAddr is
	// set.
	Addr    uint64
	HasAddr bool
}

// FlushAll flushes every translation of every address space.
func FlushAll() FlushTarget {
	return FlushTarget{}
}

// FlushASID flushes every translation of one address space.
func FlushASID(asid ASID) FlushTarget {
	return FlushTarget{ASID: asid, HasASID: true}
}

// FlushAddr flushes the translation of addr in every address space.
func FlushAddr(addr uint64) FlushTarget {
	return FlushTarget{Addr: addr, HasAddr: true}
}

// FlushPage flushes the translation of addr in one address space.
func FlushPage(asid ASID, addr uint64) FlushTarget {
	return FlushTarget{ASID: asid, HasASID: true, Addr: addr, HasAddr: true}
}

// String implements fmt.Stringer.String.
func (f FlushTarget) String() string {
	switch {
	case f.HasASID && f.HasAddr:
		return fmt.Sprintf("flush{asid=%d addr=%#x}", f.ASID, f.Addr)
	case f.HasASID:
		return fmt.Sprintf("flush{asid=%d}", f.ASID)
	case f.HasAddr:
		return fmt.Sprintf("flush{addr=%#x}", f.Addr)
	default:
		return "flush{all}"
	}
}
