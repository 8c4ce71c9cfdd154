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

// Package bits includes helpers for packing and unpacking bit fields in
// 64-bit machine words, as used by page-table entries and MMU control
// registers.
package bits

// MaskOf64 returns a uint64 with only bit i set.
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// LowMask64 returns a mask with the low n bits set. n may be 64.
func LowMask64(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return MaskOf64(n) - 1
}

// Field64 extracts the n-bit field starting at bit off.
func Field64(v uint64, off, n int) uint64 {
	return (v >> uint64(off)) & LowMask64(n)
}

// WithField64 returns v with the n-bit field starting at bit off replaced by
// f. Bits of f above n are discarded.
func WithField64(v uint64, off, n int, f uint64) uint64 {
	m := LowMask64(n) << uint64(off)
	return (v &^ m) | ((f << uint64(off)) & m)
}

// Flag64 returns the bit at position off as a bool.
func Flag64(v uint64, off int) bool {
	return v&MaskOf64(off) != 0
}

// FromBool64 returns b as a bit at position off.
func FromBool64(b bool, off int) uint64 {
	if b {
		return MaskOf64(off)
	}
	return 0
}

// AlignDown64 rounds v down to a multiple of align, which must be a power of
// two.
func AlignDown64(v, align uint64) uint64 {
	return v &^ (align - 1)
}

// IsAligned64 returns true if v is a multiple of align, which must be a power
// of two.
func IsAligned64(v, align uint64) bool {
	return v&(align-1) == 0
}
