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

// Package riscv64 implements the paging architecture layer for RISC-V64:
// the Sv39/Sv48/Sv57 page-table entry encoding, the satp control word, and
// (on riscv64 only) the privileged MMU operations.
package riscv64

import (
	"fmt"

	"rvkernel.dev/rvkernel/pkg/bits"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

// Page-table entry layout.
const (
	validBit    = 0
	privOffset  = 1
	privLen     = 3
	userBit     = 4
	globalBit   = 5
	accessedBit = 6
	dirtyBit    = 7
	reservedBit = 8
	ppnOffset   = 10
	ppnLen      = 50
	cacheOffset = 61
	cacheLen    = 2
)

// MaxPhysPageNumber is the largest page an entry can point to.
const MaxPhysPageNumber hostarch.PhysPageNumber = 1<<ppnLen - 1

// Permission codes (X|W|R packed in bits 3..1, shifted down).
const (
	permPointer          = 0
	permReadOnly         = 1
	permReadWrite        = 3
	permExecuteOnly      = 4
	permReadExecute      = 5
	permReadWriteExecute = 7
)

// Codec encodes and decodes RISC-V64 page-table entries. It is pure and may
// be used on any host.
type Codec struct{}

func privilegeToNum(p hostarch.Privilege) uint64 {
	switch p {
	case hostarch.ReadOnly:
		return permReadOnly
	case hostarch.ExecuteOnly:
		return permExecuteOnly
	case hostarch.ReadExecute:
		return permReadExecute
	case hostarch.ReadWrite:
		return permReadWrite
	case hostarch.ReadWriteExecute:
		return permReadWriteExecute
	default:
		panic(fmt.Sprintf("invalid privilege %v", p))
	}
}

func numToPrivilege(num uint64) hostarch.Privilege {
	switch num {
	case permReadOnly:
		return hostarch.ReadOnly
	case permExecuteOnly:
		return hostarch.ExecuteOnly
	case permReadExecute:
		return hostarch.ReadExecute
	case permReadWrite:
		return hostarch.ReadWrite
	case permReadWriteExecute:
		return hostarch.ReadWriteExecute
	default:
		panic(fmt.Sprintf("invalid privilege code %03b", num))
	}
}

func cacheToNum(c hostarch.CacheType) uint64 {
	switch c {
	case hostarch.Cacheable:
		return 0
	case hostarch.NonCacheable:
		return 1
	case hostarch.IO:
		return 2
	default:
		panic(fmt.Sprintf("invalid cache type %v", c))
	}
}

func numToCache(num uint64) hostarch.CacheType {
	switch num {
	case 0:
		return hostarch.Cacheable
	case 1:
		return hostarch.NonCacheable
	case 2:
		return hostarch.IO
	default:
		panic(fmt.Sprintf("invalid cache code %02b", num))
	}
}

func ppnToNum(p hostarch.PhysPageNumber) uint64 {
	if uint64(p) > bits.LowMask64(ppnLen) {
		panic(fmt.Sprintf("%v does not fit in a page-table entry", p))
	}
	return uint64(p) << ppnOffset
}

// MaxPhysPageNumber implements pte.Codec.MaxPhysPageNumber.
func (Codec) MaxPhysPageNumber() hostarch.PhysPageNumber {
	return MaxPhysPageNumber
}

// PTEToNum implements pte.Codec.PTEToNum.
func (Codec) PTEToNum(e pte.Entry) uint64 {
	switch e := e.(type) {
	case pte.Pointer:
		return bits.MaskOf64(validBit) |
			ppnToNum(e.To) |
			bits.FromBool64(e.Global, globalBit) |
			bits.FromBool64(e.Reserved, reservedBit)
	case pte.Leaf:
		return bits.MaskOf64(validBit) |
			ppnToNum(e.To) |
			privilegeToNum(e.Privilege)<<privOffset |
			cacheToNum(e.Cache)<<cacheOffset |
			bits.FromBool64(e.User, userBit) |
			bits.FromBool64(e.Global, globalBit) |
			bits.FromBool64(e.Accessed, accessedBit) |
			bits.FromBool64(e.Dirty, dirtyBit) |
			bits.FromBool64(e.Reserved, reservedBit)
	case pte.Invalid:
		num := uint64(e.Payload)
		if bits.Flag64(num, validBit) {
			panic(fmt.Sprintf("invalid entry payload %#x has the valid bit set", num))
		}
		return num
	default:
		panic(fmt.Sprintf("unknown entry %T", e))
	}
}

// NumToPTE implements pte.Codec.NumToPTE.
func (Codec) NumToPTE(num uint64) pte.Entry {
	if !bits.Flag64(num, validBit) {
		return pte.Invalid{Payload: uintptr(num)}
	}
	to := hostarch.PhysPageNumber(bits.Field64(num, ppnOffset, ppnLen))
	perm := bits.Field64(num, privOffset, privLen)
	if perm == permPointer {
		return pte.Pointer{
			To:       to,
			Global:   bits.Flag64(num, globalBit),
			Reserved: bits.Flag64(num, reservedBit),
		}
	}
	return pte.Leaf{
		To:        to,
		Privilege: numToPrivilege(perm),
		Cache:     numToCache(bits.Field64(num, cacheOffset, cacheLen)),
		Global:    bits.Flag64(num, globalBit),
		User:      bits.Flag64(num, userBit),
		Accessed:  bits.Flag64(num, accessedBit),
		Dirty:     bits.Flag64(num, dirtyBit),
		Reserved:  bits.Flag64(num, reservedBit),
	}
}
