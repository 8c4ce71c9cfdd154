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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/rand"
)

// kernelWindow is the size, in pages, of the window at the top of the
// address space where the kernel is linked by default.
const kernelWindow = (2 << 30) / hostarch.PageSize

// Layout describes a machine's memory and kernel placement. It is the
// hosted equivalent of what a bootloader reports, and is read from TOML or
// YAML:
//
//	mode = "sv39"
//	seed = 42
//
//	[kernel]
//	phys = 0x80200
//	text = 16
//	ro = 8
//	data = 8
//	bl = 4
//
//	[[memory]]
//	base = 0x80000
//	pages = 0x8000
//	type = "unused"
//
// All addresses are page numbers.
type Layout struct {
	// Mode is the paging mode of the kernel page tree.
	Mode hostarch.PagingMode `toml:"mode" yaml:"mode"`

	// HHDM is the virtual page at which physical page zero is mapped. It
	// defaults to the first page of the upper half.
	HHDM hostarch.VirtPageNumber `toml:"hhdm" yaml:"hhdm"`

	// Seed is fed to the early random number generator.
	Seed uint64 `toml:"seed" yaml:"seed"`

	// Kernel places the kernel image.
	Kernel KernelLayout `toml:"kernel" yaml:"kernel"`

	// Memory is the physical memory map.
	Memory []MemoryRegion `toml:"memory" yaml:"memory"`
}

// KernelLayout places the kernel image. The segments are contiguous in the
// order text, ro, data, bl.
type KernelLayout struct {
	// Phys is the first physical page of the image.
	Phys hostarch.PhysPageNumber `toml:"phys" yaml:"phys"`

	// Virt is the first virtual page of the image. It defaults to the start
	// of the top 2 GiB of the address space.
	Virt hostarch.VirtPageNumber `toml:"virt" yaml:"virt"`

	// Segment sizes in pages.
	Text uint64 `toml:"text" yaml:"text"`
	RO   uint64 `toml:"ro" yaml:"ro"`
	Data uint64 `toml:"data" yaml:"data"`
	BL   uint64 `toml:"bl" yaml:"bl"`
}

// DecodeLayout reads a TOML layout from r, applies defaults and validates
// it.
func DecodeLayout(r io.Reader) (*Layout, error) {
	var l Layout
	md, err := toml.NewDecoder(r).Decode(&l)
	if err != nil {
		return nil, fmt.Errorf("decoding layout: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown layout keys: %s", strings.Join(keys, ", "))
	}
	return l.finish()
}

// DecodeLayoutYAML is DecodeLayout for a YAML layout using the same keys.
func DecodeLayoutYAML(r io.Reader) (*Layout, error) {
	var l Layout
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&l); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding layout: %w", err)
	}
	return l.finish()
}

// LoadLayout reads a layout from the file at path. Files ending in .yaml or
// .yml are YAML; anything else is TOML.
func LoadLayout(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading layout: %w", err)
	}
	defer f.Close()

	decode := DecodeLayout
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		decode = DecodeLayoutYAML
	}
	l, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading layout %q: %w", path, err)
	}
	return l, nil
}

// finish applies defaults to a freshly decoded layout and validates it.
func (l *Layout) finish() (*Layout, error) {
	d := l.WithDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// WithDefaults returns a copy of l with unset fields filled in and the
// memory map sorted. l is not modified.
func (l *Layout) WithDefaults() *Layout {
	d := deepcopy.Copy(*l).(Layout)
	if d.HHDM == 0 && d.Mode.Valid() {
		top := uint64(d.Mode.VirtBits() - 1 - hostarch.PageShift)
		d.HHDM = hostarch.MaxVirtPageNumber &^ hostarch.VirtPageNumber(uint64(1)<<top-1)
	}
	if d.Kernel.Virt == 0 {
		d.Kernel.Virt = hostarch.MaxVirtPageNumber - kernelWindow + 1
	}
	slices.SortFunc(d.Memory, func(a, b MemoryRegion) int {
		switch {
		case a.Base < b.Base:
			return -1
		case a.Base > b.Base:
			return 1
		default:
			return 0
		}
	})
	return &d
}

// Validate checks that the memory map is well formed and that every range
// the kernel will map is addressable.
func (l *Layout) Validate() error {
	if !l.Mode.Valid() {
		return fmt.Errorf("invalid paging mode %v", l.Mode)
	}
	for i, r := range l.Memory {
		if r.Pages == 0 {
			return fmt.Errorf("empty memory region %v", r)
		}
		if _, ok := r.Base.ForwardChecked(r.Pages); !ok {
			return fmt.Errorf("memory region %v overflows", r)
		}
		if i > 0 {
			if prev := l.Memory[i-1]; prev.Base.Add(prev.Pages) > r.Base {
				return fmt.Errorf("memory region %v overlaps %v", r, prev)
			}
		}
	}
	k := l.Kernel
	image := PhysVirtMap{Phys: k.Phys, Virt: k.Virt, Pages: k.Text + k.RO + k.Data + k.BL}
	for _, m := range append(l.ExtraMaps(), image) {
		if m.Pages == 0 {
			continue
		}
		last, ok := m.Virt.ForwardChecked(m.Pages - 1)
		if !ok || !m.Virt.IsValid(l.Mode) || !last.IsValid(l.Mode) {
			return fmt.Errorf("range %v is not addressable under %v", m, l.Mode)
		}
	}
	return nil
}

// KernelAddress returns the kernel segments.
func (l *Layout) KernelAddress() KernelAddress {
	k := l.Kernel
	segment := func(offset, pages uint64) PhysVirtMap {
		return PhysVirtMap{Phys: k.Phys.Add(offset), Virt: k.Virt.Add(offset), Pages: pages}
	}
	return KernelAddress{
		Text: segment(0, k.Text),
		RO:   segment(k.Text, k.RO),
		Data: segment(k.Text+k.RO, k.Data),
		BL:   segment(k.Text+k.RO+k.Data, k.BL),
	}
}

// ExtraMaps returns the bootloader-reserved regions, mapped at their
// direct-map addresses.
func (l *Layout) ExtraMaps() []PhysVirtMap {
	var maps []PhysVirtMap
	for _, r := range l.Memory {
		if r.Type == BootloaderReserved {
			maps = append(maps, PhysVirtMap{Phys: r.Base, Virt: l.HHDM.Add(uint64(r.Base)), Pages: r.Pages})
		}
	}
	return maps
}

// Params returns boot parameters for l, reaching physical memory through
// accessor and seeding the random number generator with seed and l.Seed.
func (l *Layout) Params(accessor physmem.Accessor, seed uint64) *Static {
	rng := rand.New(seed)
	var b [8]byte
	for i := range b {
		b[i] = byte(l.Seed >> (8 * i))
	}
	rng.Feed(b[:])
	return &Static{
		RNG:     rng,
		Memory:  accessor,
		Regions: slices.Clone(l.Memory),
		Extra:   l.ExtraMaps(),
		Kernel:  l.KernelAddress(),
	}
}
