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

func TestParseAccessRoundTrip(t *testing.T) {
	t.Parallel()

	a := ocp.ParseAccess("rwes")
	assert.True(t, a.Has(ocp.AccessRead))
	assert.True(t, a.Has(ocp.AccessWrite))
	assert.True(t, a.Has(ocp.AccessEmit))
	assert.True(t, a.Has(ocp.AccessSink))
	assert.Equal(t, "rwes", a.String())
}

func TestParseAccessIgnoresUnknownCharacters(t *testing.T) {
	t.Parallel()

	a := ocp.ParseAccess("rxw?")
	assert.Equal(t, "rw", a.String())
}

func TestAccessMarshalJSONRoundTrip(t *testing.T) {
	t.Parallel()

	a := ocp.AccessRead | ocp.AccessEmit
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `"re"`, string(data))

	var got ocp.Access
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, a, got)
}
