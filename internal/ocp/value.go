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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the payload carried by a Value. The spec does not enforce
// type_hint/signature against the Value actually stored (§ Non-goals); Kind
// only disambiguates the wire encoding and equality comparisons.
type ValueKind uint8

const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindVec2f
	KindVec3f
	KindVec4f
	KindMap
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVec2f:
		return "vec2f"
	case KindVec3f:
		return "vec3f"
	case KindVec4f:
		return "vec4f"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// ErrUnknownValueKind is returned when decoding a wire value whose kind tag
// is not one of the known ValueKind constants.
var ErrUnknownValueKind = errors.New("ocp: unknown value kind")

// Value is the tagged union carried by a Parameter and by GET/SET/SIG/MOD
// frames. Exactly one of the typed fields is meaningful, selected by Kind.
// Vector kinds are fixed-length float32 arrays; Map holds nested capability
// values and is only valid inside the capability tree, never as a
// subscribable Parameter's own value (§4.3).
type Value struct {
	Kind ValueKind

	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string
	vecVal    []float32
	mapVal    map[string]Value
	listVal   []Value
}

// NewBool constructs a bool-kind Value.
func NewBool(v bool) Value { return Value{Kind: KindBool, boolVal: v} }

// NewInt constructs an int-kind Value.
func NewInt(v int64) Value { return Value{Kind: KindInt, intVal: v} }

// NewFloat constructs a float-kind Value.
func NewFloat(v float64) Value { return Value{Kind: KindFloat, floatVal: v} }

// NewString constructs a string-kind Value.
func NewString(v string) Value { return Value{Kind: KindString, stringVal: v} }

// NewVec2f constructs a 2-component vector Value.
func NewVec2f(x, y float32) Value { return Value{Kind: KindVec2f, vecVal: []float32{x, y}} }

// NewVec3f constructs a 3-component vector Value.
func NewVec3f(x, y, z float32) Value {
	return Value{Kind: KindVec3f, vecVal: []float32{x, y, z}}
}

// NewVec4f constructs a 4-component vector Value, used for orientation
// quaternions and RGBA-style parameters alike.
func NewVec4f(x, y, z, w float32) Value {
	return Value{Kind: KindVec4f, vecVal: []float32{x, y, z, w}}
}

// NewMap constructs a map-kind Value wrapping nested capability entries.
func NewMap(v map[string]Value) Value {
	if v == nil {
		v = map[string]Value{}
	}
	return Value{Kind: KindMap, mapVal: v}
}

// NewList constructs a list-kind Value, used for ordered collections such as
// a parameter's subscriber list that the map-kind capability tree otherwise
// has no slot for.
func NewList(v []Value) Value {
	if v == nil {
		v = []Value{}
	}
	return Value{Kind: KindList, listVal: v}
}

// Bool returns the bool payload and whether Kind matched.
func (v Value) Bool() (bool, bool) { return v.boolVal, v.Kind == KindBool }

// Int returns the int payload and whether Kind matched.
func (v Value) Int() (int64, bool) { return v.intVal, v.Kind == KindInt }

// Float returns the float payload and whether Kind matched.
func (v Value) Float() (float64, bool) { return v.floatVal, v.Kind == KindFloat }

// String returns the string payload if Kind is KindString, else a debug
// representation (so Value satisfies fmt.Stringer usefully in logs).
func (v Value) String() string {
	if v.Kind == KindString {
		return v.stringVal
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<value kind=%s>", v.Kind)
	}
	return string(b)
}

// RawString returns the string payload and whether Kind matched, without
// falling back to a debug representation.
func (v Value) RawString() (string, bool) { return v.stringVal, v.Kind == KindString }

// Vec returns the vector payload and whether Kind was one of the vector kinds.
func (v Value) Vec() ([]float32, bool) {
	switch v.Kind {
	case KindVec2f, KindVec3f, KindVec4f:
		return v.vecVal, true
	default:
		return nil, false
	}
}

// Map returns the nested map payload and whether Kind matched.
func (v Value) Map() (map[string]Value, bool) { return v.mapVal, v.Kind == KindMap }

// List returns the nested list payload and whether Kind matched.
func (v Value) List() ([]Value, bool) { return v.listVal, v.Kind == KindList }

// Equal reports bit-exact equality, used by the loop-avoidance gate in the
// SIG handler (§4.6, §9): an inbound SIG that would not change a receiver's
// stored value is not applied, so it does not re-propagate to subscribers.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.stringVal == other.stringVal
	case KindVec2f, KindVec3f, KindVec4f:
		if len(v.vecVal) != len(other.vecVal) {
			return false
		}
		for i := range v.vecVal {
			if v.vecVal[i] != other.vecVal[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, mv := range v.mapVal {
			ov, ok := other.mapVal[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the Value as the bare JSON-equivalent of its payload —
// a number, string, bool, array, or object — with no wrapper around it, so
// the wire form is exactly what a peer decoding plain JSON expects (§1, §4.3).
// Float values always marshal with a fractional or exponent marker (e.g.
// "3.0" rather than "3") so UnmarshalJSON can recover the int/float
// distinction from the token alone.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.boolVal)
	case KindInt:
		return json.Marshal(v.intVal)
	case KindFloat:
		return marshalFloatToken(v.floatVal)
	case KindString:
		return json.Marshal(v.stringVal)
	case KindVec2f, KindVec3f, KindVec4f:
		return json.Marshal(v.vecVal)
	case KindMap:
		return json.Marshal(v.mapVal)
	case KindList:
		return json.Marshal(v.listVal)
	default:
		return nil, ErrUnknownValueKind
	}
}

// marshalFloatToken formats f as a JSON number token guaranteed to carry a
// decimal point or exponent, distinguishing it from an int token on decode.
func marshalFloatToken(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("ocp: cannot encode non-finite float value %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// UnmarshalJSON decodes a bare JSON token into a Value, inferring Kind from
// the token's own shape rather than from an accompanying tag:
//
//   - a quoted string decodes as KindString
//   - true/false decodes as KindBool
//   - an object decodes as KindMap
//   - a number with no '.'/'e'/'E' decodes as KindInt, otherwise KindFloat
//   - an array of 2-4 bare numbers decodes as the matching vector kind;
//     any other array (mixed content, or a different length — e.g. a
//     flattened transform matrix) decodes as KindList
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("ocp: empty value payload")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = NewString(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = NewBool(b)
		return nil
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return err
		}
		*v = NewMap(m)
		return nil
	case '[':
		return v.unmarshalArray(trimmed)
	case 'n':
		return fmt.Errorf("ocp: null is not a valid value payload")
	default:
		return v.unmarshalNumber(trimmed)
	}
}

func (v *Value) unmarshalNumber(tok []byte) error {
	s := string(tok)
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("ocp: invalid float value %q: %w", s, err)
		}
		*v = NewFloat(f)
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Integer literal too wide for int64 (or otherwise malformed as an
		// int); fall back to float rather than failing outright.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("ocp: invalid numeric value %q: %w", s, err)
		}
		*v = NewFloat(f)
		return nil
	}
	*v = NewInt(i)
	return nil
}

func (v *Value) unmarshalArray(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if vec, ok := decodeVector(raw); ok {
		*v = vec
		return nil
	}
	list := make([]Value, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &list[i]); err != nil {
			return fmt.Errorf("ocp: list element %d: %w", i, err)
		}
	}
	*v = NewList(list)
	return nil
}

// decodeVector recognizes a bare JSON array as a Vec2f/Vec3f/Vec4f: every
// element must be a bare number token, and the array must have 2-4 elements.
// Anything wider (e.g. a flattened 16-element transform matrix) or carrying
// a non-numeric element falls back to a generic List — the only plain-JSON
// arrays this module produces with 2-4 numeric elements are its own vector
// parameters, so the heuristic never misclassifies an existing list use.
func decodeVector(raw []json.RawMessage) (Value, bool) {
	if len(raw) < 2 || len(raw) > 4 {
		return Value{}, false
	}
	components := make([]float32, len(raw))
	for i, elem := range raw {
		tok := bytes.TrimSpace(elem)
		if len(tok) == 0 || !isNumberToken(tok[0]) {
			return Value{}, false
		}
		f, err := strconv.ParseFloat(string(tok), 32)
		if err != nil {
			return Value{}, false
		}
		components[i] = float32(f)
	}
	switch len(components) {
	case 2:
		return NewVec2f(components[0], components[1]), true
	case 3:
		return NewVec3f(components[0], components[1], components[2]), true
	default:
		return NewVec4f(components[0], components[1], components[2], components[3]), true
	}
}

func isNumberToken(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9')
}
