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
	"testing"
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

func TestArenaAccess(t *testing.T) {
	a, err := NewArena(0x80000, 4)
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}
	defer a.Close()

	if got := a.Pages(); got != 4 {
		t.Errorf("Pages() = %d, want 4", got)
	}
	for _, tc := range []struct {
		page hostarch.PhysPageNumber
		want bool
	}{
		{0x7ffff, false},
		{0x80000, true},
		{0x80003, true},
		{0x80004, false},
	} {
		if got := a.Contains(tc.page); got != tc.want {
			t.Errorf("Contains(%v) = %v, want %v", tc.page, got, tc.want)
		}
	}

	g := a.AccessPhysPage(0x80002)
	if uintptr(g.Pointer())%hostarch.PageSize != 0 {
		t.Errorf("page pointer %p is not page aligned", g.Pointer())
	}
	*(*uint64)(g.Pointer()) = 0xdeadbeef
	g.Release()

	if got := *(*uint64)(unsafe.Pointer(&a.Page(0x80002)[0])); got != 0xdeadbeef {
		t.Errorf("read back %#x, want 0xdeadbeef", got)
	}
	if got := a.Page(0x80001)[0]; got != 0 {
		t.Errorf("neighbouring page was written: %#x", got)
	}
}

func TestArenaOutOfRange(t *testing.T) {
	a, err := NewArena(0x10, 1)
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}
	defer a.Close()
	defer func() {
		if recover() == nil {
			t.Errorf("access outside the arena did not panic")
		}
	}()
	a.AccessPhysPage(0x11)
}

func TestNewArenaInvalid(t *testing.T) {
	if _, err := NewArena(0x10, 0); err == nil {
		t.Errorf("NewArena with no pages succeeded")
	}
	if _, err := NewArena(hostarch.PhysPageNumber(^uint64(0)), 2); err == nil {
		t.Errorf("NewArena overflowing the page number space succeeded")
	}
}

func TestDirectMap(t *testing.T) {
	var page hostarch.Page
	base := uintptr(unsafe.Pointer(&page))
	// Map physical page 3 onto page.
	d := DirectMap{Offset: base - 3*hostarch.PageSize}
	g := d.AccessPhysPage(3)
	defer g.Release()
	if got := uintptr(g.Pointer()); got != base {
		t.Errorf("Pointer() = %#x, want %#x", got, base)
	}
}
