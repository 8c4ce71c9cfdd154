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

// CacheType specifies CPU memory access behavior for a leaf mapping.
type CacheType uint8

const (
	// Cacheable is normal write-back memory. On RISC-V this is PBMT "PMA",
	// deferring to the platform's physical memory attributes.
	//
	// This type is appropriate for typical kernel memory and must be the zero
	// value for CacheType.
	Cacheable CacheType = iota

	// NonCacheable is idempotent, weakly ordered, uncached memory (PBMT
	// "NC"), suitable for frame buffers.
	NonCacheable

	// IO is non-idempotent, strongly ordered device memory (PBMT "IO").
	IO

	// NumCacheTypes is the number of cache types.
	NumCacheTypes
)

// String implements fmt.Stringer.String.
func (c CacheType) String() string {
	switch c {
	case Cacheable:
		return "Cacheable"
	case NonCacheable:
		return "NonCacheable"
	case IO:
		return "IO"
	default:
		return fmt.Sprintf("%d", c)
	}
}

// ShortString returns a two-character string compactly representing the
// CacheType.
func (c CacheType) ShortString() string {
	switch c {
	case Cacheable:
		return "WB"
	case NonCacheable:
		return "NC"
	case IO:
		return "IO"
	default:
		return fmt.Sprintf("%02d", c)
	}
}

// ParseCacheType parses a cache type by its String or ShortString name.
func ParseCacheType(s string) (CacheType, error) {
	for c := Cacheable; c < NumCacheTypes; c++ {
		if strings.EqualFold(s, c.String()) || strings.EqualFold(s, c.ShortString()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cache type %q", s)
}
