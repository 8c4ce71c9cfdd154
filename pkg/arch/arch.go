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

// Package arch defines the interface between the paging core and the
// machine it runs on.
package arch

import (
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// Arch is the set of machine operations the paging core depends on.
//
// Implementations are stateless values; every method may be called from
// any goroutine.
type Arch interface {
	// Codec converts entries to and from the machine's entry layout.
	pte.Codec

	// Halt stops the processor. It never returns.
	Halt()

	// FlushMMU invalidates cached translations selected by t.
	FlushMMU(t hostarch.FlushTarget)

	// SetMMU makes root the translation root for asid under mode. It
	// returns false if the hardware did not accept the configuration, in
	// which case the previous configuration remains in effect.
	//
	// SetMMU does not flush; the caller must call FlushMMU afterwards.
	SetMMU(asid hostarch.ASID, mode hostarch.PagingMode, root hostarch.PhysPageNumber) bool

	// MaxAddressSpace returns the largest supported ASID.
	MaxAddressSpace() hostarch.ASID

	// DefaultPagingMode returns the deepest paging mode the machine is
	// configured to use. Every shallower mode is also supported.
	DefaultPagingMode() hostarch.PagingMode

	// Rand returns a weak hardware-derived random value, suitable only as
	// seed material.
	Rand() uint64
}

// SupportsPagingMode returns true if a supports mode.
func SupportsPagingMode(a Arch, mode hostarch.PagingMode) bool {
	return mode.Valid() && mode.Levels() <= a.DefaultPagingMode().Levels()
}
