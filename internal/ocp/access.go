// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package ocp

import (
	"encoding/json"
	"strings"
)

// Access is a subset of {readable, writable, emitter, signal-sink} (§3).
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessEmit
	AccessSink
)

// ParseAccess parses a string like "rwe" into an Access bitmask. Unknown
// characters are ignored so forward-compatible flags don't hard-fail decode.
func ParseAccess(s string) Access {
	var a Access
	for _, c := range s {
		switch c {
		case 'r':
			a |= AccessRead
		case 'w':
			a |= AccessWrite
		case 'e':
			a |= AccessEmit
		case 's':
			a |= AccessSink
		}
	}
	return a
}

// Has reports whether all of flags are set.
func (a Access) Has(flags Access) bool { return a&flags == flags }

// String renders the access set in canonical r,w,e,s order.
func (a Access) String() string {
	var b strings.Builder
	if a.Has(AccessRead) {
		b.WriteByte('r')
	}
	if a.Has(AccessWrite) {
		b.WriteByte('w')
	}
	if a.Has(AccessEmit) {
		b.WriteByte('e')
	}
	if a.Has(AccessSink) {
		b.WriteByte('s')
	}
	return b.String()
}

func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Access) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = ParseAccess(s)
	return nil
}
