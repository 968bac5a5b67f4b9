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
	"errors"
	"fmt"
)

// FrameKind names the one top-level key carried by a control-message
// payload (§6's grammar table).
type FrameKind string

const (
	FrameGet   FrameKind = "GET"
	FrameSet   FrameKind = "SET"
	FrameCall  FrameKind = "CALL"
	FrameSub   FrameKind = "SUB"
	FrameUnsub FrameKind = "UNSUB"
	FrameRep   FrameKind = "REP"
	FrameMod   FrameKind = "MOD"
	FrameSig   FrameKind = "SIG"
)

// ErrMalformedFrame is returned when a payload is not a single-key mapping,
// or carries an unrecognized key with no registered handler (§6, §7).
var ErrMalformedFrame = errors.New("ocp: malformed control frame")

// Frame is a decoded control message: one key and its raw payload, ready
// for a Dispatcher handler to unmarshal further.
type Frame struct {
	Kind    FrameKind
	Payload json.RawMessage
}

// DecodeFrame parses raw bytes as a single-key top-level mapping per §6.
// More than one key, or zero keys, is malformed.
func DecodeFrame(raw []byte) (Frame, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(m) != 1 {
		return Frame{}, fmt.Errorf("%w: expected exactly one key, got %d", ErrMalformedFrame, len(m))
	}
	for k, v := range m {
		return Frame{Kind: FrameKind(k), Payload: v}, nil
	}
	return Frame{}, ErrMalformedFrame
}

func encodeFrame(kind FrameKind, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{string(kind): payload})
}

// EncodeGet builds a GET frame. A nil keys slice requests the full
// capability tree; otherwise only the named top-level items are requested.
func EncodeGet(keys []string) ([]byte, error) {
	return encodeFrame(FrameGet, keys)
}

// DecodeGetPayload parses a GET frame's payload into the requested key list
// (nil meaning "full tree").
func DecodeGetPayload(payload json.RawMessage) ([]string, error) {
	if string(payload) == "null" {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, fmt.Errorf("%w: GET payload: %v", ErrMalformedFrame, err)
	}
	return keys, nil
}

// EncodeSet builds a SET frame carrying a partial capability tree to be
// deep-merged into the recipient's own tree.
func EncodeSet(tree map[string]Value) ([]byte, error) {
	return encodeFrame(FrameSet, tree)
}

// DecodeTreePayload parses a SET or MOD frame's partial-tree payload.
func DecodeTreePayload(payload json.RawMessage) (map[string]Value, error) {
	var tree map[string]Value
	if err := json.Unmarshal(payload, &tree); err != nil {
		return nil, fmt.Errorf("%w: tree payload: %v", ErrMalformedFrame, err)
	}
	return tree, nil
}

// EncodeMod builds a MOD frame carrying a partial capability tree delta.
func EncodeMod(tree map[string]Value) ([]byte, error) {
	return encodeFrame(FrameMod, tree)
}

// EncodeCall builds a CALL frame. CALL is reserved and a no-op on receipt
// (§6), but the sending helper is still part of the public surface.
func EncodeCall(method string, args []Value) ([]byte, error) {
	return encodeFrame(FrameCall, []any{method, args})
}

// EncodeRep builds a REP frame. REP is reserved and a no-op on receipt.
func EncodeRep(payload Value) ([]byte, error) {
	return encodeFrame(FrameRep, payload)
}

func encodeSignalID(id SignalID) any {
	if !id.Valid() {
		return nil
	}
	return int(id)
}

func decodeSignalID(raw json.RawMessage) (SignalID, error) {
	if raw == nil || string(raw) == "null" {
		return NoSignalID, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return NoSignalID, fmt.Errorf("%w: sig_id: %v", ErrMalformedFrame, err)
	}
	return SignalID(n), nil
}

// EncodeSub builds a SUB frame: [emit_peer_hex, emit_sig_id, recv_peer_hex,
// recv_sig_id], either sig_id possibly null for a wildcard (§6).
func EncodeSub(emitPeer PeerID, emitSig SignalID, recvPeer PeerID, recvSig SignalID) ([]byte, error) {
	return encodeFrame(FrameSub, []any{
		emitPeer.String(), encodeSignalID(emitSig),
		recvPeer.String(), encodeSignalID(recvSig),
	})
}

// EncodeUnsub builds an UNSUB frame, same shape as SUB.
func EncodeUnsub(emitPeer PeerID, emitSig SignalID, recvPeer PeerID, recvSig SignalID) ([]byte, error) {
	return encodeFrame(FrameUnsub, []any{
		emitPeer.String(), encodeSignalID(emitSig),
		recvPeer.String(), encodeSignalID(recvSig),
	})
}

// SubPayload is the decoded form of a SUB/UNSUB frame.
type SubPayload struct {
	EmitPeer PeerID
	EmitSig  SignalID
	RecvPeer PeerID
	RecvSig  SignalID
}

// DecodeSubPayload parses a SUB or UNSUB frame's positional array payload.
func DecodeSubPayload(payload json.RawMessage) (SubPayload, error) {
	var raw [4]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return SubPayload{}, fmt.Errorf("%w: SUB/UNSUB payload: %v", ErrMalformedFrame, err)
	}

	var emitPeerHex, recvPeerHex string
	if err := json.Unmarshal(raw[0], &emitPeerHex); err != nil {
		return SubPayload{}, fmt.Errorf("%w: emit_peer: %v", ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(raw[2], &recvPeerHex); err != nil {
		return SubPayload{}, fmt.Errorf("%w: recv_peer: %v", ErrMalformedFrame, err)
	}
	emitPeer, err := ParsePeerID(emitPeerHex)
	if err != nil {
		return SubPayload{}, err
	}
	recvPeer, err := ParsePeerID(recvPeerHex)
	if err != nil {
		return SubPayload{}, err
	}
	emitSig, err := decodeSignalID(raw[1])
	if err != nil {
		return SubPayload{}, err
	}
	recvSig, err := decodeSignalID(raw[3])
	if err != nil {
		return SubPayload{}, err
	}
	return SubPayload{EmitPeer: emitPeer, EmitSig: emitSig, RecvPeer: recvPeer, RecvSig: recvSig}, nil
}

// EncodeSig builds a SIG frame: [emit_sig_id, value] (§4.6).
func EncodeSig(sigID SignalID, v Value) ([]byte, error) {
	return encodeFrame(FrameSig, []any{int(sigID), v})
}

// SigPayload is the decoded form of a SIG frame.
type SigPayload struct {
	SigID SignalID
	Value Value
}

// DecodeSigPayload parses a SIG frame's [emit_sig_id, value] payload.
func DecodeSigPayload(payload json.RawMessage) (SigPayload, error) {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return SigPayload{}, fmt.Errorf("%w: SIG payload: %v", ErrMalformedFrame, err)
	}
	sigID, err := decodeSignalID(raw[0])
	if err != nil {
		return SigPayload{}, err
	}
	var v Value
	if err := json.Unmarshal(raw[1], &v); err != nil {
		return SigPayload{}, fmt.Errorf("%w: SIG value: %v", ErrMalformedFrame, err)
	}
	return SigPayload{SigID: sigID, Value: v}, nil
}
