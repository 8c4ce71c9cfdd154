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

// Package cmd holds the ptsim subcommands.
package cmd

import (
	"fmt"
	"iter"
	"slices"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
	"rvkernel.dev/rvkernel/pkg/boot"
	"rvkernel.dev/rvkernel/pkg/hostarch"
	"rvkernel.dev/rvkernel/pkg/log"
	"rvkernel.dev/rvkernel/pkg/physmem"
	"rvkernel.dev/rvkernel/pkg/ring0/pagetables"
)

// maxArenaPages bounds the arena backing a simulated machine.
const maxArenaPages = 1 << 20

// failure logs an error and returns the failure status.
func failure(format string, v ...any) subcommands.ExitStatus {
	log.Warningf(format, v...)
	return subcommands.ExitFailure
}

// usageError logs an error and returns the usage status.
func usageError(format string, v ...any) subcommands.ExitStatus {
	log.Warningf(format, v...)
	return subcommands.ExitUsageError
}

// unusedSpan returns the smallest page range covering every Unused region
// of regions.
func unusedSpan(regions []boot.MemoryRegion) (hostarch.PhysPageNumber, uint64, error) {
	var (
		first, end hostarch.PhysPageNumber
		found      bool
	)
	for _, r := range regions {
		if r.Type != boot.Unused {
			continue
		}
		if !found || r.Base < first {
			first = r.Base
		}
		if e := r.Base.Add(r.Pages); !found || e > end {
			end = e
		}
		found = true
	}
	if !found {
		return 0, 0, fmt.Errorf("no unused memory")
	}
	return first, uint64(end - first), nil
}

// newArena returns an arena backing every Unused region of regions.
func newArena(regions []boot.MemoryRegion) (*physmem.Arena, error) {
	base, pages, err := unusedSpan(regions)
	if err != nil {
		return nil, err
	}
	if pages > maxArenaPages {
		return nil, fmt.Errorf("unused memory spans %d pages, more than %d", pages, maxArenaPages)
	}
	return physmem.NewArena(base, pages)
}

// parseUint parses s as an unsigned integer with a base prefix.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

// sameMappings returns an error describing how the mappings of a and b
// differ, if they do.
func sameMappings(a, b iter.Seq[pagetables.Mapping]) error {
	if diff := cmp.Diff(slices.Collect(a), slices.Collect(b)); diff != "" {
		return fmt.Errorf("mappings differ (-original +copy):\n%s", diff)
	}
	return nil
}
