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
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// DirectMap is an Accessor backed by a linear mapping of all physical
// memory at a fixed virtual offset, such as the higher-half direct map set
// up by the bootloader.
type DirectMap struct {
	// Offset is the virtual address at which physical address zero is
	// mapped.
	Offset uintptr
}

// AccessPhysPage implements Accessor.AccessPhysPage.
func (d DirectMap) AccessPhysPage(page hostarch.PhysPageNumber) AccessGuard {
	return PageGuard{ptr: unsafe.Pointer(d.Offset + uintptr(page.Addr()))}
}
