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

package ocp_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpctl/ocp/internal/ocp"
)

func TestValueEqual(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		a, b  ocp.Value
		equal bool
	}{
		{"bool equal", ocp.NewBool(true), ocp.NewBool(true), true},
		{"bool differ", ocp.NewBool(true), ocp.NewBool(false), false},
		{"int equal", ocp.NewInt(42), ocp.NewInt(42), true},
		{"int differ", ocp.NewInt(42), ocp.NewInt(43), false},
		{"float equal", ocp.NewFloat(1.5), ocp.NewFloat(1.5), true},
		{"string equal", ocp.NewString("a"), ocp.NewString("a"), true},
		{"string differ", ocp.NewString("a"), ocp.NewString("b"), false},
		{"vec3f equal", ocp.NewVec3f(1, 2, 3), ocp.NewVec3f(1, 2, 3), true},
		{"vec3f differ", ocp.NewVec3f(1, 2, 3), ocp.NewVec3f(1, 2, 4), false},
		{"kind mismatch", ocp.NewInt(1), ocp.NewFloat(1), false},
		{
			"map equal",
			ocp.NewMap(map[string]ocp.Value{"a": ocp.NewInt(1)}),
			ocp.NewMap(map[string]ocp.Value{"a": ocp.NewInt(1)}),
			true,
		},
		{
			"map differ",
			ocp.NewMap(map[string]ocp.Value{"a": ocp.NewInt(1)}),
			ocp.NewMap(map[string]ocp.Value{"a": ocp.NewInt(2)}),
			false,
		},
		{
			"list equal",
			ocp.NewList([]ocp.Value{ocp.NewInt(1), ocp.NewInt(2)}),
			ocp.NewList([]ocp.Value{ocp.NewInt(1), ocp.NewInt(2)}),
			true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.equal, tc.a.Equal(tc.b))
		})
	}
}

func TestValueMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()

	values := []ocp.Value{
		ocp.NewBool(true),
		ocp.NewInt(-7),
		ocp.NewFloat(3.25),
		ocp.NewString("hello"),
		ocp.NewVec2f(1, 2),
		ocp.NewVec3f(1, 2, 3),
		ocp.NewVec4f(1, 2, 3, 4),
		ocp.NewMap(map[string]ocp.Value{"x": ocp.NewInt(1)}),
		ocp.NewList([]ocp.Value{ocp.NewString("a"), ocp.NewInt(2)}),
	}

	for _, v := range values {
		v := v
		t.Run(v.Kind.String(), func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(v)
			require.NoError(t, err)

			var got ocp.Value
			require.NoError(t, json.Unmarshal(data, &got))
			assert.True(t, v.Equal(got), "round-tripped value should equal original")
		})
	}
}

func TestValueMarshalIsBareJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		v    ocp.Value
		want string
	}{
		{"bool", ocp.NewBool(true), `true`},
		{"int", ocp.NewInt(42), `42`},
		{"float", ocp.NewFloat(3), `3.0`},
		{"string", ocp.NewString("hi"), `"hi"`},
		{"vec3f", ocp.NewVec3f(1, 2, 3), `[1,2,3]`},
		{"map", ocp.NewMap(map[string]ocp.Value{"x": ocp.NewInt(1)}), `{"x":1}`},
		{"list", ocp.NewList([]ocp.Value{ocp.NewInt(1), ocp.NewString("a")}), `[1,"a"]`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(tc.v)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestValueUnmarshalWideArrayIsList(t *testing.T) {
	t.Parallel()

	// A 16-element flattened matrix is not a recognized vector length and
	// must decode as a List, not fail or get truncated.
	data := []byte(`[0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15]`)
	var v ocp.Value
	require.NoError(t, json.Unmarshal(data, &v))
	list, ok := v.List()
	require.True(t, ok)
	assert.Len(t, list, 16)
}

func TestValueUnmarshalMixedContentArrayIsList(t *testing.T) {
	t.Parallel()

	data := []byte(`["peer-1", 3]`)
	var v ocp.Value
	require.NoError(t, json.Unmarshal(data, &v))
	_, ok := v.List()
	assert.True(t, ok, "array with a non-numeric element must decode as a List, not a vector")
}

func TestValueUnmarshalNullIsRejected(t *testing.T) {
	t.Parallel()

	var v ocp.Value
	err := json.Unmarshal([]byte(`null`), &v)
	assert.Error(t, err)
}

func TestValueUnmarshalIntVsFloatToken(t *testing.T) {
	t.Parallel()

	var i ocp.Value
	require.NoError(t, json.Unmarshal([]byte(`7`), &i))
	iv, ok := i.Int()
	require.True(t, ok)
	assert.Equal(t, int64(7), iv)

	var f ocp.Value
	require.NoError(t, json.Unmarshal([]byte(`7.0`), &f))
	fv, ok := f.Float()
	require.True(t, ok)
	assert.Equal(t, 7.0, fv)
}

func TestValueStringFallsBackToDebugRepresentation(t *testing.T) {
	t.Parallel()

	v := ocp.NewInt(5)
	assert.NotEmpty(t, v.String())

	s := ocp.NewString("plain")
	assert.Equal(t, "plain", s.String())
}
