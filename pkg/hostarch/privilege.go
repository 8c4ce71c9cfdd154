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

import "fmt"

// Privilege is the access permitted through a leaf mapping.
type Privilege uint8

const (
	// ReadOnly permits loads. It is the zero value.
	ReadOnly Privilege = iota

	// ExecuteOnly permits instruction fetches.
	ExecuteOnly

	// ReadExecute permits loads and instruction fetches.
	ReadExecute

	// ReadWrite permits loads and stores.
	ReadWrite

	// ReadWriteExecute permits everything.
	ReadWriteExecute

	// NumPrivileges is the number of privileges.
	NumPrivileges
)

// CanRead returns true if the privilege permits loads.
func (p Privilege) CanRead() bool {
	return p != ExecuteOnly
}

// CanWrite returns true if the privilege permits stores.
func (p Privilege) CanWrite() bool {
	return p == ReadWrite || p == ReadWriteExecute
}

// CanExecute returns true if the privilege permits instruction fetches.
func (p Privilege) CanExecute() bool {
	return p == ExecuteOnly || p == ReadExecute || p == ReadWriteExecute
}

// String implements fmt.Stringer.String.
func (p Privilege) String() string {
	switch p {
	case ReadOnly:
		return "r--"
	case ExecuteOnly:
		return "--x"
	case ReadExecute:
		return "r-x"
	case ReadWrite:
		return "rw-"
	case ReadWriteExecute:
		return "rwx"
	default:
		return fmt.Sprintf("Privilege(%d)", p)
	}
}

// ParsePrivilege parses a privilege in the form returned by String, such as
// "rw-".
func ParsePrivilege(s string) (Privilege, error) {
	for p := ReadOnly; p < NumPrivileges; p++ {
		if s == p.String() {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown privilege %q", s)
}
