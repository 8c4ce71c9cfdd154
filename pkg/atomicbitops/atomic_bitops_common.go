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

// Update atomically replaces the value of u with f(current), retrying when
// another writer interferes between the load and the store.
//
// f is called with the freshly loaded value on every attempt and must be
// free of side effects that cannot be repeated. If f returns ok == false the
// loop stops without writing.
//
// Update returns (previous, true) if a new value was installed, and
// (current, false) if f declined to update.
func (u *Uint64) Update(f func(cur uint64) (next uint64, ok bool)) (uint64, bool) {
	for {
		cur := u.Load()
		next, ok := f(cur)
		if !ok {
			return cur, false
		}
		if u.CompareAndSwap(cur, next) {
			return cur, true
		}
	}
}
