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
	"fmt"
	"strings"
)

// PagingMode is the virtual address width, and so the table depth, of a
// page tree.
type PagingMode uint8

const (
	// Layer3 uses 39-bit virtual addresses and three table levels (Sv39).
	Layer3 PagingMode = iota

	// Layer4 uses 48-bit virtual addresses and four table levels (Sv48).
	Layer4

	// Layer5 uses 57-bit virtual addresses and five table levels (Sv57).
	Layer5

	numPagingModes
)

// MaxLayers bounds the depth of any supported paging mode.
const MaxLayers = 6

// Valid returns true if m is a known paging mode.
func (m PagingMode) Valid() bool {
	return m < numPagingModes
}

// Levels returns the number of table levels walked by the MMU.
func (m PagingMode) Levels() int {
	switch m {
	case Layer3:
		return 3
	case Layer4:
		return 4
	case Layer5:
		return 5
	default:
		panic(fmt.Sprintf("unknown paging mode %d", m))
	}
}

// VirtBits returns the width of a virtual address in bits.
func (m PagingMode) VirtBits() int {
	return PageShift + m.Levels()*LevelBits
}

// EntrySpan returns the number of pages covered by one entry of a table at
// the given level. Level 0 is the leaf level.
func (m PagingMode) EntrySpan(level int) uint64 {
	if level < 0 || level >= m.Levels() {
		panic(fmt.Sprintf("level %d out of range for %v", level, m))
	}
	return uint64(1) << uint64(level*LevelBits)
}

// String implements fmt.Stringer.String.
func (m PagingMode) String() string {
	switch m {
	case Layer3:
		return "Layer3"
	case Layer4:
		return "Layer4"
	case Layer5:
		return "Layer5"
	default:
		return fmt.Sprintf("PagingMode(%d)", m)
	}
}

// ParsePagingMode parses a mode by its String name or its RISC-V name
// ("sv39", "sv48", "sv57").
func ParsePagingMode(s string) (PagingMode, error) {
	for m := Layer3; m < numPagingModes; m++ {
		if strings.EqualFold(s, m.String()) || strings.EqualFold(s, fmt.Sprintf("sv%d", m.VirtBits())) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown paging mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (m PagingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (m *PagingMode) UnmarshalText(b []byte) error {
	v, err := ParsePagingMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
