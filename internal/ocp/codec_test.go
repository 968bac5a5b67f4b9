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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpctl/ocp/internal/ocp"
)

func TestDecodeFrameRejectsNonSingleKeyPayloads(t *testing.T) {
	t.Parallel()

	_, err := ocp.DecodeFrame([]byte(`{}`))
	assert.ErrorIs(t, err, ocp.ErrMalformedFrame)

	_, err = ocp.DecodeFrame([]byte(`{"GET": null, "SET": {}}`))
	assert.ErrorIs(t, err, ocp.ErrMalformedFrame)
}

func TestGetFrameRoundTrip(t *testing.T) {
	t.Parallel()

	payload, err := ocp.EncodeGet([]string{"a", "b"})
	require.NoError(t, err)

	frame, err := ocp.DecodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, ocp.FrameGet, frame.Kind)

	keys, err := ocp.DecodeGetPayload(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestGetFrameNilKeysMeansFullTree(t *testing.T) {
	t.Parallel()

	payload, err := ocp.EncodeGet(nil)
	require.NoError(t, err)

	frame, err := ocp.DecodeFrame(payload)
	require.NoError(t, err)

	keys, err := ocp.DecodeGetPayload(frame.Payload)
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestSetFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tree := map[string]ocp.Value{"x": ocp.NewInt(1)}
	payload, err := ocp.EncodeSet(tree)
	require.NoError(t, err)

	frame, err := ocp.DecodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, ocp.FrameSet, frame.Kind)

	got, err := ocp.DecodeTreePayload(frame.Payload)
	require.NoError(t, err)
	assert.True(t, got["x"].Equal(ocp.NewInt(1)))
}

func TestSubFrameRoundTripWithWildcardSigID(t *testing.T) {
	t.Parallel()

	var emitPeer, recvPeer ocp.PeerID
	emitPeer[0], recvPeer[0] = 0xAA, 0xBB

	payload, err := ocp.EncodeSub(emitPeer, ocp.SignalID(3), recvPeer, ocp.NoSignalID)
	require.NoError(t, err)

	frame, err := ocp.DecodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, ocp.FrameSub, frame.Kind)

	sub, err := ocp.DecodeSubPayload(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, emitPeer, sub.EmitPeer)
	assert.Equal(t, recvPeer, sub.RecvPeer)
	assert.Equal(t, ocp.SignalID(3), sub.EmitSig)
	assert.Equal(t, ocp.NoSignalID, sub.RecvSig)
}

func TestSigFrameRoundTrip(t *testing.T) {
	t.Parallel()

	payload, err := ocp.EncodeSig(ocp.SignalID(5), ocp.NewFloat(1.25))
	require.NoError(t, err)

	frame, err := ocp.DecodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, ocp.FrameSig, frame.Kind)

	sig, err := ocp.DecodeSigPayload(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, ocp.SignalID(5), sig.SigID)
	assert.True(t, sig.Value.Equal(ocp.NewFloat(1.25)))
}

func TestPeerIDStringRoundTrip(t *testing.T) {
	t.Parallel()

	var id ocp.PeerID
	for i := range id {
		id[i] = byte(i)
	}

	parsed, err := ocp.ParsePeerID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParsePeerIDRejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := ocp.ParsePeerID("aa")
	assert.Error(t, err)
}
