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

package kernel

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"rvkernel.dev/rvkernel/pkg/arch/archtest"
	"rvkernel.dev/rvkernel/pkg/boot"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/ring0/pagetables"
	"rvkernel.dev/rvkernel/pkg/sync"
)

const (
	memBase  hostarch.PhysPageNumber = 0x80000
	memPages                         = 64
)

func newLayout(t *testing.T, unused uint64) (*boot.Layout, *physmem.Arena) {
	t.Helper()
	arena, err := physmem.NewArena(memBase, memPages)
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}
	t.Cleanup(func() { arena.Close() })
	l := (&boot.Layout{
		Mode: hostarch.Layer3,
		Kernel: boot.KernelLayout{
			Phys: 0x80200,
			Text: 3,
			RO:   2,
			Data: 2,
			BL:   1,
		},
		Memory: []boot.MemoryRegion{
			{Base: memBase, Pages: unused, Type: boot.Unused},
			{Base: 0x80200, Pages: 8, Type: boot.Reserved},
			{Base: 0x90000, Pages: 4, Type: boot.BootloaderReserved},
		},
	}).WithDefaults()
	if err := l.Validate(); err != nil {
		t.Fatalf("invalid layout: %v", err)
	}
	return l, arena
}

func TestStart(t *testing.T) {
	l, arena := newLayout(t, memPages)
	var mmu archtest.MMU
	a := mmu.Install(archtest.New())

	k, err := Start(a, l.Params(arena, 1))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ka := l.KernelAddress()
	for _, tc := range []struct {
		m    boot.PhysVirtMap
		priv hostarch.Privilege
	}{
		{ka.Text, hostarch.ReadExecute},
		{ka.RO, hostarch.ReadOnly},
		{ka.Data, hostarch.ReadWrite},
		{ka.BL, hostarch.ReadWrite},
		{l.ExtraMaps()[0], hostarch.ReadWrite},
	} {
		for i := uint64(0); i < tc.m.Pages; i++ {
			leaf, phys, ok := k.Tree.Translate(tc.m.Virt.Add(i))
			if !ok {
				t.Errorf("%v not mapped", tc.m.Virt.Add(i))
				continue
			}
			if phys != tc.m.Phys.Add(i) || leaf.Privilege != tc.priv || !leaf.Global {
				t.Errorf("%v maps %v with %v, want %v %v global", tc.m.Virt.Add(i), phys, leaf, tc.m.Phys.Add(i), tc.priv)
			}
		}
	}
	if leaf, _, _ := k.Tree.Translate(ka.RO.Virt); leaf.Dirty {
		t.Errorf("read-only segment mapped dirty")
	}

	if mmu.SATP.Root() != k.Tree.Root() || mmu.SATP.ASID() != KernelASID {
		t.Errorf("satp = %v, want root %v asid %d", mmu.SATP, k.Tree.Root(), KernelASID)
	}
	if diff := cmp.Diff([]hostarch.FlushTarget{hostarch.FlushASID(KernelASID)}, mmu.Flushes); diff != "" {
		t.Errorf("flushes mismatch (-want +got):\n%s", diff)
	}

	var tables uint64
	for range k.Tree.Tables() {
		tables++
	}
	if got := k.Allocator.Outstanding(); got != tables {
		t.Errorf("outstanding pages = %d, want %d tables", got, tables)
	}
}

func TestStartDirectMap(t *testing.T) {
	l, arena := newLayout(t, memPages)
	// Address the arena the way the kernel addresses memory through the
	// bootloader's direct map.
	first := uintptr(unsafe.Pointer(&arena.Page(memBase)[0]))
	dm := physmem.DirectMap{Offset: first - uintptr(memBase.Addr())}

	var mmu archtest.MMU
	k, err := Start(mmu.Install(archtest.New()), l.Params(dm, 1))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	text := l.KernelAddress().Text
	if _, phys, ok := k.Tree.Translate(text.Virt); !ok || phys != text.Phys {
		t.Errorf("text %v translates to (%v, %v), want %v", text.Virt, phys, ok, text.Phys)
	}
	root := arena.Page(k.Tree.Root())
	if !slices.ContainsFunc(root, func(b byte) bool { return b != 0 }) {
		t.Errorf("root table %v is empty in the arena", k.Tree.Root())
	}
}

func TestStartOutOfMemory(t *testing.T) {
	l, arena := newLayout(t, 2)
	var mmu archtest.MMU
	a := mmu.Install(archtest.New())
	if _, err := Start(a, l.Params(arena, 1)); !errors.Is(err, pagetables.ErrPhysicalPageAlloc) {
		t.Errorf("Start with two pages = %v, want ErrPhysicalPageAlloc", err)
	}
	if len(mmu.Flushes) != 0 {
		t.Errorf("failed Start flushed the MMU")
	}
}

func TestStartRejected(t *testing.T) {
	l, arena := newLayout(t, memPages)
	mmu := archtest.MMU{Reject: true}
	a := mmu.Install(archtest.New())
	if _, err := Start(a, l.Params(arena, 1)); !errors.Is(err, ErrActivate) {
		t.Errorf("Start with a rejecting MMU = %v, want ErrActivate", err)
	}
}

var errHalted = errors.New("halted")

// haltArch panics with errHalted instead of halting.
type haltArch struct {
	archtest.Arch
}

func (haltArch) Halt() {
	panic(errHalted)
}

// recorder collects formatted log messages.
type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Emit(_ int, level log.Level, _ time.Time, format string, v ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, fmt.Sprintf("%v: %s", level, fmt.Sprintf(format, v...)))
}

func (r *recorder) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func captureLog(t *testing.T) *recorder {
	old := log.Log().Emitter
	r := &recorder{}
	log.SetTarget(&log.MultiEmitter{r, &log.TestEmitter{TestLogger: t}})
	t.Cleanup(func() { log.SetTarget(old) })
	return r
}

func runAndHalt(t *testing.T, a haltArch, p boot.Params) {
	t.Helper()
	defer func() {
		if r := recover(); r != errHalted {
			t.Errorf("Run ended with %v, want a halt", r)
		}
	}()
	Run(a, p)
}

func TestRun(t *testing.T) {
	for _, tc := range []struct {
		name   string
		reject bool
		want   string
	}{
		{"started", false, "Kernel started."},
		{"rejected", true, "Kernel start failed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := captureLog(t)
			l, arena := newLayout(t, memPages)
			mmu := archtest.MMU{Reject: tc.reject}
			runAndHalt(t, haltArch{mmu.Install(archtest.New())}, l.Params(arena, 1))
			if !r.contains(tc.want) {
				t.Errorf("log does not contain %q: %v", tc.want, r.messages)
			}
		})
	}
}

func TestRunRecoversPanic(t *testing.T) {
	r := captureLog(t)
	l, arena := newLayout(t, memPages)
	p := l.Params(arena, 1)
	p.TakeRand()

	// Start takes the generator again, which panics.
	runAndHalt(t, haltArch{archtest.New()}, p)
	if !r.contains("Kernel panic") {
		t.Errorf("log does not mention the panic: %v", r.messages)
	}
}

func TestBootOnHost(t *testing.T) {
	if runtime.GOARCH == "riscv64" {
		t.Skip("Boot would program the real MMU")
	}
	r := captureLog(t)
	l, arena := newLayout(t, memPages)
	defer func() {
		if recover() == nil {
			t.Errorf("Boot returned")
		}
		// The host stand-in cannot program an MMU.
		if !r.contains("Kernel panic") {
			t.Errorf("log does not mention the panic: %v", r.messages)
		}
	}()
	Boot(l.Params(arena, 1))
}
