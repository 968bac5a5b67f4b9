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

import "fmt"

// PeerGet whispers a GET request to peer. A nil keys slice requests the
// full capability tree (§6).
func (n *Node) PeerGet(peer PeerID, keys []string) error {
	payload, err := EncodeGet(keys)
	if err != nil {
		return err
	}
	return n.whisper(peer, payload)
}

// PeerSet whispers a SET frame to peer, deep-merging tree into the peer's
// capability tree on receipt.
func (n *Node) PeerSet(peer PeerID, tree map[string]Value) error {
	payload, err := EncodeSet(tree)
	if err != nil {
		return err
	}
	return n.whisper(peer, payload)
}

// PeerCall whispers a CALL frame to peer. CALL is a reserved no-op on
// receipt (§6); the sending helper exists because pyZOCP exposes it even
// though nothing currently consumes it.
func (n *Node) PeerCall(peer PeerID, method string, args []Value) error {
	payload, err := EncodeCall(method, args)
	if err != nil {
		return err
	}
	return n.whisper(peer, payload)
}

// SignalSubscribe implements the generic signal_subscribe operation of
// §4.5: it may be invoked by the receiver, the emitter, or a third-party
// initiator, identified only by which of recvPeer/emitPeer equals Self().
func (n *Node) SignalSubscribe(recvPeer PeerID, recvSigID SignalID, emitPeer PeerID, emitSigID SignalID) error {
	self := n.Self()

	if recvPeer == self {
		n.subs.AddInbound(emitPeer, emitSigID, recvSigID)
	}
	if emitPeer == self {
		n.applySubscribeLocal(emitSigID, recvPeer, recvSigID)
	}

	target := emitPeer
	if emitPeer == self {
		target = recvPeer
	}
	if target == self {
		return nil
	}
	payload, err := EncodeSub(emitPeer, emitSigID, recvPeer, recvSigID)
	if err != nil {
		return err
	}
	return n.whisper(target, payload)
}

// SignalUnsubscribe is the symmetric inverse of SignalSubscribe (§4.5),
// idempotent in the same way.
func (n *Node) SignalUnsubscribe(recvPeer PeerID, recvSigID SignalID, emitPeer PeerID, emitSigID SignalID) error {
	self := n.Self()

	if recvPeer == self {
		n.subs.RemoveInbound(emitPeer, emitSigID, recvSigID)
	}
	if emitPeer == self {
		n.applyUnsubscribeLocal(emitSigID, recvPeer, recvSigID)
	}

	target := emitPeer
	if emitPeer == self {
		target = recvPeer
	}
	if target == self {
		return nil
	}
	payload, err := EncodeUnsub(emitPeer, emitSigID, recvPeer, recvSigID)
	if err != nil {
		return err
	}
	return n.whisper(target, payload)
}

// applySubscribeLocal is the emitter-side state update shared by
// SignalSubscribe and the SUB handler's "apply locally" branch: record
// (recvPeer, recvSigID) against our own parameter emitSigID, or add
// recvPeer to monitor_out for a wildcard (emitSigID == NoSignalID).
func (n *Node) applySubscribeLocal(emitSigID SignalID, recvPeer PeerID, recvSigID SignalID) {
	if emitSigID.Valid() {
		if p := n.registry.Get(emitSigID); p != nil {
			p.SubscribeReceiver(recvPeer, recvSigID)
		}
	} else {
		n.subs.AddMonitor(recvPeer)
	}
	if n.OnPeerSubscribed != nil {
		n.OnPeerSubscribed(SubPayload{EmitPeer: n.Self(), EmitSig: emitSigID, RecvPeer: recvPeer, RecvSig: recvSigID})
	}
}

func (n *Node) applyUnsubscribeLocal(emitSigID SignalID, recvPeer PeerID, recvSigID SignalID) {
	if emitSigID.Valid() {
		if p := n.registry.Get(emitSigID); p != nil {
			p.UnsubscribeReceiver(recvPeer, recvSigID)
		}
	} else {
		n.subs.RemoveMonitor(recvPeer)
	}
	if n.OnPeerUnsubscribed != nil {
		n.OnPeerUnsubscribed(SubPayload{EmitPeer: n.Self(), EmitSig: emitSigID, RecvPeer: recvPeer, RecvSig: recvSigID})
	}
}

// whisperSignal implements parameterOwner for Node (§4.6): fan the SIG
// frame out to explicit subscribers first, in insertion order, then to
// every monitor (not deduplicated against subscribers, §5's ordering
// guarantee).
func (n *Node) whisperSignal(subscribers []SubscriberKey, sigID SignalID, v Value) {
	payload, err := EncodeSig(sigID, v)
	if err != nil {
		return
	}
	sent := 0
	for _, sub := range subscribers {
		if err := n.whisper(sub.Peer, payload); err == nil {
			sent++
		}
	}
	for _, monitor := range n.subs.Monitors() {
		if err := n.whisper(monitor, payload); err == nil {
			sent++
		}
	}
	if n.hooks.OnSignalFanout != nil {
		n.hooks.OnSignalFanout(sent)
	}
}

// notifyModified implements parameterOwner for Node (§4.7): invoke the
// local on_modified callback, then whisper MOD(wrapped delta) to every
// monitor except origin.
func (n *Node) notifyModified(path []string, delta map[string]Value, origin *PeerID) {
	if len(delta) == 0 {
		return
	}
	if n.OnModified != nil {
		n.OnModified(delta)
	}

	wrapped := WrapPath(delta, path)
	payload, err := EncodeMod(wrapped)
	if err != nil {
		return
	}
	for _, monitor := range n.subs.Monitors() {
		if origin != nil && monitor == *origin {
			continue
		}
		_ = n.whisper(monitor, payload)
	}
}

// EmitTreeMutation is the public entry point for any direct capability-tree
// mutation outside the parameter registry (SetNodeLocation and friends),
// wiring it through the same _on_modified path every other mutation uses
// (§4.7).
func (n *Node) EmitTreeMutation(path []string, value Value) {
	n.tree.Set(path, value)
	n.notifyModified(path, map[string]Value{path[len(path)-1]: value}, nil)
}

func containerErr(name string, path []string) error {
	return fmt.Errorf("%w: %q in %v", ErrNameCollision, name, path)
}
