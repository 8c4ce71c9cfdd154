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

import (
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, mode := range []PagingMode{Layer3, Layer4, Layer5} {
		t.Run(mode.String(), func(t *testing.T) {
			// Index of the highest used page number bit.
			top := uint64(mode.VirtBits() - 1 - PageShift)
			lowerTop := VirtPageNumber(1)<<top - 1
			upperBottom := MaxVirtPageNumber &^ (VirtPageNumber(1)<<top - 1)

			for _, tc := range []struct {
				name string
				vpn  VirtPageNumber
				want bool
			}{
				{"zero", 0, false},
				{"one", 1, true},
				{"lower top", lowerTop, true},
				{"one page below lower top", lowerTop - 1, true},
				{"first non-canonical", lowerTop + 1, false},
				{"last non-canonical", upperBottom - 1, false},
				{"upper bottom", upperBottom, true},
				{"one page above upper bottom", upperBottom + 1, true},
				{"below max", MaxVirtPageNumber - 1, true},
				{"max", MaxVirtPageNumber, false},
				{"beyond page number space", MaxVirtPageNumber + 1, false},
			} {
				if got := tc.vpn.IsValid(mode); got != tc.want {
					t.Errorf("%s: %v.IsValid(%v): got %v, want %v", tc.name, tc.vpn, mode, got, tc.want)
				}
			}
		})
	}
}

func TestPagingMode(t *testing.T) {
	for _, tc := range []struct {
		mode   PagingMode
		levels int
		bits   int
	}{
		{Layer3, 3, 39},
		{Layer4, 4, 48},
		{Layer5, 5, 57},
	} {
		if got := tc.mode.Levels(); got != tc.levels {
			t.Errorf("%v.Levels(): got %d, want %d", tc.mode, got, tc.levels)
		}
		if got := tc.mode.VirtBits(); got != tc.bits {
			t.Errorf("%v.VirtBits(): got %d, want %d", tc.mode, got, tc.bits)
		}
		if tc.mode.Levels() > MaxLayers {
			t.Errorf("%v exceeds MaxLayers", tc.mode)
		}
		if got, want := tc.mode.EntrySpan(tc.levels-1), uint64(1)<<uint64((tc.levels-1)*LevelBits); got != want {
			t.Errorf("%v.EntrySpan(top): got %d, want %d", tc.mode, got, want)
		}
	}
	if PagingMode(7).Valid() {
		t.Errorf("PagingMode(7).Valid() = true")
	}
	if EntriesPerTable != 512 {
		t.Errorf("EntriesPerTable: got %d, want 512", EntriesPerTable)
	}
}

func TestIndex(t *testing.T) {
	v := VirtPageNumber(0x1<<18 | 0x2<<9 | 0x3)
	for level, want := range []int{3, 2, 1} {
		if got := v.Index(level); got != want {
			t.Errorf("%v.Index(%d): got %d, want %d", v, level, got, want)
		}
	}
	// High-half page numbers index from the top of the root table.
	if got := (MaxVirtPageNumber - 1).Index(2); got != EntriesPerTable-1 {
		t.Errorf("Index of high page: got %d, want %d", got, EntriesPerTable-1)
	}
}

func TestStepping(t *testing.T) {
	p := PhysPageNumber(10)
	if n, ok := p.StepsTo(p.Add(5)); !ok || n != 5 {
		t.Errorf("StepsTo: got (%d, %v), want (5, true)", n, ok)
	}
	if _, ok := p.StepsTo(p.Prev()); ok {
		t.Errorf("StepsTo backwards succeeded")
	}
	if _, ok := PhysPageNumber(^uint64(0)).ForwardChecked(1); ok {
		t.Errorf("ForwardChecked overflow succeeded")
	}
	if _, ok := p.BackwardChecked(11); ok {
		t.Errorf("BackwardChecked underflow succeeded")
	}
	if got, ok := p.BackwardChecked(10); !ok || got != 0 {
		t.Errorf("BackwardChecked(10): got (%v, %v), want (0, true)", got, ok)
	}
	if _, ok := MaxVirtPageNumber.ForwardChecked(1); ok {
		t.Errorf("VirtPageNumber ForwardChecked beyond max succeeded")
	}
	if got := VirtPageNumber(1).Next().Prev(); got != 1 {
		t.Errorf("Next().Prev(): got %v, want 1", got)
	}
}

func TestFromAddr(t *testing.T) {
	if got := PhysPageNumberFromAddr(0x80200000); got != 0x80200 {
		t.Errorf("PhysPageNumberFromAddr: got %v, want 0x80200", got)
	}
	if got := VirtPageNumberFromAddr(0xffffffff80000000).Addr(); got != 0xffffffff80000000 {
		t.Errorf("VirtPageNumber round trip: got %#x", got)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("unaligned address did not panic")
		}
	}()
	PhysPageNumberFromAddr(0x1001)
}

func TestPrivilege(t *testing.T) {
	for _, tc := range []struct {
		p       Privilege
		r, w, x bool
	}{
		{ReadOnly, true, false, false},
		{ExecuteOnly, false, false, true},
		{ReadExecute, true, false, true},
		{ReadWrite, true, true, false},
		{ReadWriteExecute, true, true, true},
	} {
		if tc.p.CanRead() != tc.r || tc.p.CanWrite() != tc.w || tc.p.CanExecute() != tc.x {
			t.Errorf("%v: got r=%v w=%v x=%v, want r=%v w=%v x=%v", tc.p, tc.p.CanRead(), tc.p.CanWrite(), tc.p.CanExecute(), tc.r, tc.w, tc.x)
		}
	}
}

func TestParsePagingMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want PagingMode
	}{
		{"Layer3", Layer3},
		{"layer4", Layer4},
		{"sv39", Layer3},
		{"SV57", Layer5},
	} {
		got, err := ParsePagingMode(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParsePagingMode(%q) = (%v, %v), want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParsePagingMode("sv32"); err == nil {
		t.Errorf("ParsePagingMode(sv32) succeeded")
	}

	var m PagingMode
	if err := m.UnmarshalText([]byte("sv48")); err != nil || m != Layer4 {
		t.Errorf("UnmarshalText(sv48) = (%v, %v), want Layer4", m, err)
	}
}

func TestParseAttributes(t *testing.T) {
	for p := ReadOnly; p < NumPrivileges; p++ {
		if got, err := ParsePrivilege(p.String()); err != nil || got != p {
			t.Errorf("ParsePrivilege(%q) = (%v, %v), want %v", p.String(), got, err, p)
		}
	}
	if _, err := ParsePrivilege("-w-"); err == nil {
		t.Errorf("ParsePrivilege(-w-) succeeded")
	}
	for c := Cacheable; c < NumCacheTypes; c++ {
		if got, err := ParseCacheType(c.ShortString()); err != nil || got != c {
			t.Errorf("ParseCacheType(%q) = (%v, %v), want %v", c.ShortString(), got, err, c)
		}
	}
	if got, err := ParseCacheType("noncacheable"); err != nil || got != NonCacheable {
		t.Errorf("ParseCacheType(noncacheable) = (%v, %v), want NonCacheable", got, err)
	}
}
