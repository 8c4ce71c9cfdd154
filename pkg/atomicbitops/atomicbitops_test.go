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

package atomicbitops

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestUpdateDeclined(t *testing.T) {
	u := FromUint64(7)
	cur, ok := u.Update(func(uint64) (uint64, bool) { return 0, false })
	if ok || cur != 7 {
		t.Errorf("Update declined: got (%d, %v), want (7, false)", cur, ok)
	}
	if got := u.Load(); got != 7 {
		t.Errorf("value after declined update: got %d, want 7", got)
	}
}

func TestUpdateInstalls(t *testing.T) {
	u := FromUint64(7)
	prev, ok := u.Update(func(cur uint64) (uint64, bool) { return cur * 2, true })
	if !ok || prev != 7 {
		t.Errorf("Update: got (%d, %v), want (7, true)", prev, ok)
	}
	if got := u.Load(); got != 14 {
		t.Errorf("value after update: got %d, want 14", got)
	}
}

func TestUpdateConcurrent(t *testing.T) {
	const (
		workers = 16
		iters   = 1000
	)
	var u Uint64
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < iters; j++ {
				u.Update(func(cur uint64) (uint64, bool) { return cur + 1, true })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got, want := u.Load(), uint64(workers*iters); got != want {
		t.Errorf("counter: got %d, want %d", got, want)
	}
}

func TestAdd(t *testing.T) {
	u := FromUint64(40)
	if got := u.Add(2); got != 42 {
		t.Errorf("Add: got %d, want 42", got)
	}
}
