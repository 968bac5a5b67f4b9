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
)

// wireDefaultHandlers registers the eight built-in control-message handlers
// (§6's grammar table) on the Node's Dispatcher.
func (n *Node) wireDefaultHandlers() {
	n.dispatcher.RegisterHandler(FrameGet, n.handleGet)
	n.dispatcher.RegisterHandler(FrameSet, n.handleSet)
	n.dispatcher.RegisterHandler(FrameCall, n.handleCall)
	n.dispatcher.RegisterHandler(FrameSub, n.handleSub)
	n.dispatcher.RegisterHandler(FrameUnsub, n.handleUnsub)
	n.dispatcher.RegisterHandler(FrameRep, n.handleRep)
	n.dispatcher.RegisterHandler(FrameMod, n.handleMod)
	n.dispatcher.RegisterHandler(FrameSig, n.handleSig)
}

// handleGet answers a GET request with a MOD whisper carrying the
// requested subtree (or the full tree when keys is nil, §6).
func (n *Node) handleGet(sender PeerID, payload json.RawMessage) error {
	keys, err := DecodeGetPayload(payload)
	if err != nil {
		return err
	}

	var subtree map[string]Value
	if keys == nil {
		full, err := n.tree.Get(nil)
		if err != nil {
			return err
		}
		subtree, _ = full.Map()
	} else {
		subtree = make(map[string]Value, len(keys))
		for _, key := range keys {
			v, err := n.tree.Get([]string{key})
			if err != nil {
				// Missing key: report an empty subtree rather than failing
				// or silently dropping the key from the response.
				subtree[key] = NewMap(map[string]Value{})
				continue
			}
			subtree[key] = v
		}
	}

	reply, err := EncodeMod(subtree)
	if err != nil {
		return err
	}
	return n.whisper(sender, reply)
}

// handleSet deep-merges an inbound partial tree into our own capability
// tree and fires the local on_modified path, excluding sender from the
// resulting MOD re-broadcast (§6).
func (n *Node) handleSet(sender PeerID, payload json.RawMessage) error {
	tree, err := DecodeTreePayload(payload)
	if err != nil {
		return err
	}
	n.tree.Merge(tree)
	n.notifyModified(nil, tree, &sender)
	return nil
}

// handleCall is a reserved no-op receiver (§6).
func (n *Node) handleCall(_ PeerID, _ json.RawMessage) error { return nil }

// handleRep is a reserved no-op receiver (§6).
func (n *Node) handleRep(_ PeerID, _ json.RawMessage) error { return nil }

// handleMod merges the delta into our mirror of sender's capability tree
// and fires on_peer_modified (§6).
func (n *Node) handleMod(sender PeerID, payload json.RawMessage) error {
	tree, err := DecodeTreePayload(payload)
	if err != nil {
		return err
	}
	n.subs.PeerCaps(sender).Merge(tree)
	if n.OnPeerModified != nil {
		n.OnPeerModified(sender, tree)
	}
	return nil
}

// handleSub applies the SUB routing rule of §4.5: apply locally if we are
// the named emitter and sender is the named receiver; reject if neither
// end is us; otherwise forward by re-entering SignalSubscribe from our own
// perspective (handlers must be idempotent).
func (n *Node) handleSub(sender PeerID, payload json.RawMessage) error {
	sub, err := DecodeSubPayload(payload)
	if err != nil {
		return err
	}
	self := n.Self()

	switch {
	case sub.EmitPeer == self && sub.RecvPeer == sender:
		n.applySubscribeLocal(sub.EmitSig, sub.RecvPeer, sub.RecvSig)
		return nil
	case sub.EmitPeer != self && sub.RecvPeer != self:
		return nil // invalid: neither end is us, drop silently
	default:
		return n.SignalSubscribe(sub.RecvPeer, sub.RecvSig, sub.EmitPeer, sub.EmitSig)
	}
}

// handleUnsub is the symmetric inverse of handleSub.
func (n *Node) handleUnsub(sender PeerID, payload json.RawMessage) error {
	sub, err := DecodeSubPayload(payload)
	if err != nil {
		return err
	}
	self := n.Self()

	switch {
	case sub.EmitPeer == self && sub.RecvPeer == sender:
		n.applyUnsubscribeLocal(sub.EmitSig, sub.RecvPeer, sub.RecvSig)
		return nil
	case sub.EmitPeer != self && sub.RecvPeer != self:
		return nil
	default:
		return n.SignalUnsubscribe(sub.RecvPeer, sub.RecvSig, sub.EmitPeer, sub.EmitSig)
	}
}

// handleSig applies an inbound signal per §4.6's receiver-side algorithm.
func (n *Node) handleSig(sender PeerID, payload json.RawMessage) error {
	sig, err := DecodeSigPayload(payload)
	if err != nil {
		return err
	}

	if peerCaps, ok := n.subs.PeerCapsIfKnown(sender); ok {
		peerCaps.PatchSignalValue(sig.SigID, sig.Value)
	}

	receivers := n.subs.InboundReceivers(sender, sig.SigID)
	for _, recvID := range receivers {
		if !recvID.Valid() {
			continue
		}
		p := n.registry.Get(recvID)
		if p == nil {
			continue
		}
		if !p.Get().Equal(sig.Value) {
			p.Set(sig.Value)
		}
	}

	monitoring := len(n.subs.InboundReceivers(sender, NoSignalID)) > 0
	if (len(receivers) > 0 || monitoring) && n.OnPeerSignaled != nil {
		n.OnPeerSignaled(sender, sig)
	}
	return nil
}
