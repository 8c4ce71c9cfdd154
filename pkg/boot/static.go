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

package boot

import (
	"iter"
	"slices"

	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/rand"
)

// Static is a Params built from fixed values.
type Static struct {
	RNG     *rand.RNG
	Memory  physmem.Accessor
	Regions []MemoryRegion
	Extra   []PhysVirtMap
	Kernel  KernelAddress
}

var _ Params = (*Static)(nil)

// TakeRand implements Params.TakeRand.
func (s *Static) TakeRand() *rand.RNG {
	r := s.RNG
	if r == nil {
		panic("random number generator taken more than once")
	}
	s.RNG = nil
	return r
}

// Accessor implements Params.Accessor.
func (s *Static) Accessor() physmem.Accessor {
	return s.Memory
}

// MemoryMap implements Params.MemoryMap.
func (s *Static) MemoryMap() iter.Seq[MemoryRegion] {
	return slices.Values(s.Regions)
}

// ExtraMaps implements Params.ExtraMaps.
func (s *Static) ExtraMaps() iter.Seq[PhysVirtMap] {
	return slices.Values(s.Extra)
}

// KernelAddress implements Params.KernelAddress.
func (s *Static) KernelAddress() KernelAddress {
	return s.Kernel
}
