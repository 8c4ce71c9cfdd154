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

//go:build !linux

package physmem

import (
	"unsafe"

	"rvkernel.dev/rvkernel/pkg/hostarch"
)

// allocArena allocates size bytes of page-aligned memory from the Go heap.
func allocArena(size int) ([]byte, func() error, error) {
	buf := make([]byte, size+hostarch.PageSize)
	off := 0
	if rem := uintptr(unsafe.Pointer(&buf[0])) % hostarch.PageSize; rem != 0 {
		off = int(hostarch.PageSize - rem)
	}
	return buf[off : off+size : off+size], nil, nil
}
