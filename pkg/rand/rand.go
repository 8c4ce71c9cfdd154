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

// Package rand provides the kernel's early entropy pool.
//
// RNG absorbs seed material with FNV-1a-128 and produces output with an
// xorshift128+ variant. It is fast and has no dependencies, which makes it
// usable before memory management is up, but it is not cryptographically
// secure.
package rand

import (
	"encoding/binary"
	"math/bits"
)

const (
	// offsetBasisHi and offsetBasisLo form the FNV-1a-128 offset basis.
	offsetBasisHi = 0x6c62272e07bb0142
	offsetBasisLo = 0x62b821756295c58d

	// primeLo is the low word of the FNV-1a-128 prime 2^88 + 0x13b.
	primeLo    = 0x13b
	primeShift = 88 - 64
)

// RNG is a non-cryptographic random number generator.
//
// An RNG must not be used concurrently.
type RNG struct {
	hi, lo uint64
}

// New returns a generator seeded with seed, typically the architecture's
// hardware counter mix.
func New(seed uint64) *RNG {
	r := &RNG{hi: offsetBasisHi, lo: offsetBasisLo}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	r.Feed(b[:])
	return r
}

// Feed mixes b into the state.
func (r *RNG) Feed(b []byte) {
	for _, c := range b {
		r.lo ^= uint64(c)
		h, l := bits.Mul64(r.lo, primeLo)
		r.hi = r.hi*primeLo + h + r.lo<<primeShift
		r.lo = l
	}
}

// Uint64 returns the next value.
func (r *RNG) Uint64() uint64 {
	x, y := r.lo, r.hi
	x ^= x << 23
	x ^= x >> 17
	x ^= y
	r.lo, r.hi = y, x+y
	return x
}

// Read implements io.Reader.Read. It always fills p.
func (r *RNG) Read(p []byte) (int, error) {
	var b [8]byte
	n := 0
	for n < len(p) {
		binary.LittleEndian.PutUint64(b[:], r.Uint64())
		n += copy(p[n:], b[:])
	}
	return n, nil
}
