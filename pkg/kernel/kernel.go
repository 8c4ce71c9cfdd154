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

// Package kernel brings up the kernel's address space from the bootloader
// hand-off.
package kernel

import (
	"errors"
	"fmt"

	"rvkernel.dev/rvkernel/pkg/arch"
	"rvkernel.dev/rvkernel/pkg/boot"
	"rvkernel.dev/rvkernel/pkg/cleanup"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/pmm"
	"rvkernel.dev/rvkernel/pkg/rand"
	"rvkernel.dev/rvkernel/pkg/ring0/pagetables"
)

// KernelASID is the address space the kernel runs in.
const KernelASID hostarch.ASID = 0

// ErrActivate is returned when the MMU rejects the kernel page tree.
var ErrActivate = errors.New("MMU rejected the kernel page tree")

// Kernel is the state built by Start.
type Kernel struct {
	// Arch is the machine.
	Arch arch.Arch

	// Allocator owns all Unused physical memory.
	Allocator *pmm.Allocator

	// Tree is the active kernel page tree.
	Tree *pagetables.PageTree

	// RNG is the early random number generator.
	RNG *rand.RNG
}

// segment is a range to map with its attributes.
type segment struct {
	name string
	m    boot.PhysVirtMap
	opts pagetables.MapOpts
}

// kernelOpts returns the attributes of a kernel mapping with privilege p.
func kernelOpts(p hostarch.Privilege) pagetables.MapOpts {
	return pagetables.MapOpts{
		Privilege: p,
		Cache:     hostarch.Cacheable,
		Global:    true,
		Accessed:  true,
		Dirty:     p.CanWrite(),
		Huge:      true,
	}
}

// segments returns every range the kernel maps at start.
func segments(p boot.Params) []segment {
	ka := p.KernelAddress()
	segs := []segment{
		{"text", ka.Text, kernelOpts(hostarch.ReadExecute)},
		{"rodata", ka.RO, kernelOpts(hostarch.ReadOnly)},
		{"data", ka.Data, kernelOpts(hostarch.ReadWrite)},
		{"bootloader data", ka.BL, kernelOpts(hostarch.ReadWrite)},
	}
	for m := range p.ExtraMaps() {
		segs = append(segs, segment{"extra", m, kernelOpts(hostarch.ReadWrite)})
	}
	return segs
}

// Start builds the kernel page tree in a's default paging mode and
// activates it.
func Start(a arch.Arch, p boot.Params) (*Kernel, error) {
	rng := p.TakeRand()
	log.Infof("Boot ID %016x.", rng.Uint64())

	alloc := pmm.New()
	for r := range p.MemoryMap() {
		if r.Type != boot.Unused {
			log.Debugf("Skipping memory region %v.", r)
			continue
		}
		if err := alloc.AddRange(r.Base, r.Pages); err != nil {
			return nil, fmt.Errorf("adding memory region %v: %w", r, err)
		}
	}
	log.Infof("%d pages of physical memory available.", alloc.Free())

	mode := a.DefaultPagingMode()
	tree, err := pagetables.New(a, p.Accessor(), alloc, mode)
	if err != nil {
		return nil, fmt.Errorf("creating kernel page tree: %w", err)
	}
	cu := cleanup.Make(tree.Release)
	defer cu.Clean()

	for _, s := range segments(p) {
		if s.m.Pages == 0 {
			continue
		}
		if err := tree.Map(s.m.Phys, s.m.Virt, s.m.Pages, s.opts); err != nil {
			return nil, fmt.Errorf("mapping kernel %s %v: %w", s.name, s.m, err)
		}
		log.Debugf("Mapped kernel %s %v as %v.", s.name, s.m, s.opts.Privilege)
	}

	if !tree.Activate(KernelASID) {
		return nil, fmt.Errorf("%w: root %v under %v", ErrActivate, tree.Root(), mode)
	}
	cu.Release()
	log.Infof("Kernel page tree %v active under %v.", tree.Root(), mode)
	return &Kernel{Arch: a, Allocator: alloc, Tree: tree, RNG: rng}, nil
}

// Run starts the kernel and halts. It never returns.
//
// Any error or panic during start-up is logged before halting.
func Run(a arch.Arch, p boot.Params) {
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("Kernel panic: %v", r)
			a.Halt()
		}
	}()
	if _, err := Start(a, p); err != nil {
		log.Warningf("Kernel start failed: %v", err)
		a.Halt()
	}
	log.Infof("Kernel started.")
	a.Halt()
}

// Boot runs the kernel on the architecture it was built for. A bootloader
// shim calls it once it has collected p. It never returns.
func Boot(p boot.Params) {
	Run(arch.Native(), p)
}
