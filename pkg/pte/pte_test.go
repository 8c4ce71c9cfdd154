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

package pte

import (
	"testing"
	"unsafe"
)

func TestDefault(t *testing.T) {
	if got, want := Default(), Entry(Invalid{}); got != want {
		t.Errorf("Default(): got %v, want %v", got, want)
	}
	if Default().Valid() {
		t.Errorf("Default().Valid() = true")
	}
}

func TestValid(t *testing.T) {
	for _, tc := range []struct {
		e    Entry
		want bool
	}{
		{Pointer{To: 1}, true},
		{Leaf{To: 1}, true},
		{Invalid{Payload: 0x1000}, false},
	} {
		if got := tc.e.Valid(); got != tc.want {
			t.Errorf("%v.Valid(): got %v, want %v", tc.e, got, tc.want)
		}
	}
}

func TestInvalidPointer(t *testing.T) {
	var word uint64
	p := unsafe.Pointer(&word)
	inv := InvalidFromPointer(p)
	if got := inv.Pointer(); got != p {
		t.Errorf("Pointer(): got %p, want %p", got, p)
	}
}

func TestInvalidMisaligned(t *testing.T) {
	var buf [4]byte
	p := unsafe.Add(unsafe.Pointer(&buf[0]), 1)
	if uintptr(p)&1 == 0 {
		p = unsafe.Add(p, 1)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("InvalidFromPointer(%p) did not panic", p)
		}
	}()
	InvalidFromPointer(p)
}
