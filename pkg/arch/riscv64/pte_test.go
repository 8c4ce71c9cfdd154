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
	"testing"

	"github.com/google/go-cmp/cmp"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

var privileges = []hostarch.Privilege{
	hostarch.ReadOnly,
	hostarch.ExecuteOnly,
	hostarch.ReadExecute,
	hostarch.ReadWrite,
	hostarch.ReadWriteExecute,
}

var caches = []hostarch.CacheType{
	hostarch.Cacheable,
	hostarch.NonCacheable,
	hostarch.IO,
}

func TestRoundTripLeaf(t *testing.T) {
	var c Codec
	ppns := []hostarch.PhysPageNumber{0, 1, 0x10, 0x80200, 1<<ppnLen - 1}
	for _, to := range ppns {
		for _, p := range privileges {
			for _, cache := range caches {
				for flags := 0; flags < 1<<5; flags++ {
					want := pte.Leaf{
						To:        to,
						Privilege: p,
						Cache:     cache,
						Global:    flags&1 != 0,
						User:      flags&2 != 0,
						Accessed:  flags&4 != 0,
						Dirty:     flags&8 != 0,
						Reserved:  flags&16 != 0,
					}
					got := c.NumToPTE(c.PTEToNum(want))
					if diff := cmp.Diff(pte.Entry(want), got); diff != "" {
						t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
					}
				}
			}
		}
	}
}

func TestRoundTripPointer(t *testing.T) {
	var c Codec
	for _, to := range []hostarch.PhysPageNumber{0, 0x42, 1<<ppnLen - 1} {
		for flags := 0; flags < 4; flags++ {
			want := pte.Pointer{To: to, Global: flags&1 != 0, Reserved: flags&2 != 0}
			got := c.NumToPTE(c.PTEToNum(want))
			if diff := cmp.Diff(pte.Entry(want), got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		}
	}
}

func TestRoundTripInvalid(t *testing.T) {
	var c Codec
	for _, payload := range []uintptr{0, 2, 0x1000, 0xdeadbeee, ^uintptr(1)} {
		want := pte.Invalid{Payload: payload}
		num := c.PTEToNum(want)
		if num != uint64(payload) {
			t.Errorf("PTEToNum(%v): got %#x, want the payload verbatim", want, num)
		}
		if got := c.NumToPTE(num); got != pte.Entry(want) {
			t.Errorf("NumToPTE(%#x): got %v, want %v", num, got, want)
		}
	}
}

func TestInvalidWithValidBitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("encoding an odd invalid payload did not panic")
		}
	}()
	Codec{}.PTEToNum(pte.Invalid{Payload: 3})
}

func TestEncoding(t *testing.T) {
	var c Codec
	for _, tc := range []struct {
		name string
		e    pte.Entry
		want uint64
	}{
		{"default", pte.Default(), 0},
		{"pointer", pte.Pointer{To: 0x80200}, 0x80200<<10 | 1},
		{"global pointer", pte.Pointer{To: 1, Global: true, Reserved: true}, 1<<10 | 1<<8 | 1<<5 | 1},
		{"read only", pte.Leaf{To: 0x10}, 0x10<<10 | 0b0011},
		{"read write", pte.Leaf{To: 0x10, Privilege: hostarch.ReadWrite}, 0x10<<10 | 0b0111},
		{"execute only", pte.Leaf{To: 0x10, Privilege: hostarch.ExecuteOnly}, 0x10<<10 | 0b1001},
		{"read execute", pte.Leaf{To: 0x10, Privilege: hostarch.ReadExecute}, 0x10<<10 | 0b1011},
		{"rwx", pte.Leaf{To: 0x10, Privilege: hostarch.ReadWriteExecute}, 0x10<<10 | 0b1111},
		{"user global accessed dirty", pte.Leaf{To: 0, User: true, Global: true, Accessed: true, Dirty: true}, 0b11110011},
		{"non cacheable", pte.Leaf{Cache: hostarch.NonCacheable}, 1<<61 | 0b11},
		{"io", pte.Leaf{Cache: hostarch.IO}, 2<<61 | 0b11},
	} {
		if got := c.PTEToNum(tc.e); got != tc.want {
			t.Errorf("%s: PTEToNum(%v): got %#x, want %#x", tc.name, tc.e, got, tc.want)
		}
	}
}

func TestReservedCodesPanic(t *testing.T) {
	for _, num := range []uint64{
		0b0101,    // write only
		0b1101,    // write execute
		3<<61 | 3, // reserved PBMT
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NumToPTE(%#x) did not panic", num)
				}
			}()
			Codec{}.NumToPTE(num)
		}()
	}
}

func TestPPNOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("encoding an oversized PPN did not panic")
		}
	}()
	Codec{}.PTEToNum(pte.Leaf{To: 1 << ppnLen})
}

func TestMaxPhysPageNumber(t *testing.T) {
	var c pte.Codec = Codec{}
	last := c.MaxPhysPageNumber()
	if last != 1<<ppnLen-1 {
		t.Fatalf("MaxPhysPageNumber: got %v, want %v", last, hostarch.PhysPageNumber(1<<ppnLen-1))
	}
	want := pte.Pointer{To: last}
	if got := c.NumToPTE(c.PTEToNum(want)); got != pte.Entry(want) {
		t.Errorf("round trip of %v: got %v", want, got)
	}
}

func TestSATP(t *testing.T) {
	for _, tc := range []struct {
		mode hostarch.PagingMode
		asid hostarch.ASID
		root hostarch.PhysPageNumber
		want SATP
	}{
		{hostarch.Layer3, 0, 0x80200, 8<<60 | 0x80200},
		{hostarch.Layer4, 1, 0x1, 9<<60 | 1<<44 | 0x1},
		{hostarch.Layer5, 0xffff, 0xfffffffffff, 10<<60 | 0xffff<<44 | 0xfffffffffff},
	} {
		got := MakeSATP(tc.mode, tc.asid, tc.root)
		if got != tc.want {
			t.Errorf("MakeSATP(%v, %d, %v): got %#x, want %#x", tc.mode, tc.asid, tc.root, uint64(got), uint64(tc.want))
		}
		if mode, ok := got.Mode(); !ok || mode != tc.mode {
			t.Errorf("%v.Mode(): got (%v, %v), want (%v, true)", got, mode, ok, tc.mode)
		}
		if got.ASID() != tc.asid || got.Root() != tc.root {
			t.Errorf("%v: got asid=%d root=%v, want asid=%d root=%v", got, got.ASID(), got.Root(), tc.asid, tc.root)
		}
	}
	if _, ok := SATP(0).Mode(); ok {
		t.Errorf("bare satp reports a paging mode")
	}
	if got := SATP(0).WithASID(0xffff).ASID(); got != 0xffff {
		t.Errorf("WithASID: got %#x, want 0xffff", got)
	}
}
