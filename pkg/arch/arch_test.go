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

package arch

import (
	"testing"

	"rvkernel.dev/rvkernel/pkg/arch/archtest"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/pte"
)

func TestSupportsPagingMode(t *testing.T) {
	for _, tc := range []struct {
		def  hostarch.PagingMode
		mode hostarch.PagingMode
		want bool
	}{
		{hostarch.Layer3, hostarch.Layer3, true},
		{hostarch.Layer3, hostarch.Layer4, false},
		{hostarch.Layer4, hostarch.Layer3, true},
		{hostarch.Layer5, hostarch.Layer4, true},
		{hostarch.Layer5, hostarch.PagingMode(7), false},
	} {
		a := archtest.Arch{Mode: tc.def}
		if got := SupportsPagingMode(a, tc.mode); got != tc.want {
			t.Errorf("SupportsPagingMode(default %v, %v) = %v, want %v", tc.def, tc.mode, got, tc.want)
		}
	}
}

func TestArchtest(t *testing.T) {
	var a Arch = archtest.New()
	if got := a.MaxAddressSpace(); got != 0xffff {
		t.Errorf("MaxAddressSpace() = %#x, want 0xffff", got)
	}
	if got := a.DefaultPagingMode(); got != hostarch.Layer3 {
		t.Errorf("DefaultPagingMode() = %v, want Layer3", got)
	}
	if got := a.Rand(); got != 0 {
		t.Errorf("Rand() = %d, want 0", got)
	}

	leaf := pte.Leaf{To: 0x10, Privilege: hostarch.ReadWrite, Accessed: true, Dirty: true}
	if got := a.NumToPTE(a.PTEToNum(leaf)); got != pte.Entry(leaf) {
		t.Errorf("round trip of %v = %v", leaf, got)
	}

	for name, f := range map[string]func(){
		"Halt":     a.Halt,
		"FlushMMU": func() { a.FlushMMU(hostarch.FlushAll()) },
		"SetMMU":   func() { a.SetMMU(1, hostarch.Layer3, 0x80) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", name)
				}
			}()
			f()
		})
	}
}

func TestMMURecorder(t *testing.T) {
	var m archtest.MMU
	a := m.Install(archtest.New())
	if !a.SetMMU(3, hostarch.Layer3, 0x80) {
		t.Fatalf("SetMMU rejected")
	}
	a.FlushMMU(hostarch.FlushASID(3))
	if got := m.SATP.Root(); got != 0x80 {
		t.Errorf("recorded root = %v, want 0x80", got)
	}
	if got := m.SATP.ASID(); got != 3 {
		t.Errorf("recorded ASID = %d, want 3", got)
	}
	if len(m.Flushes) != 1 || m.Flushes[0] != hostarch.FlushASID(3) {
		t.Errorf("recorded flushes = %v", m.Flushes)
	}

	m.Reject = true
	if a.SetMMU(4, hostarch.Layer3, 0x81) {
		t.Errorf("SetMMU accepted while rejecting")
	}
	if got := m.SATP.ASID(); got != 3 {
		t.Errorf("rejected SetMMU changed recorded ASID to %d", got)
	}
}
