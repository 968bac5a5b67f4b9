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

import "sync"

// parameterOwner is the slice of Node that a Parameter needs to produce
// network traffic. Declaring it here (rather than importing Node directly)
// keeps Parameter testable in isolation from the event loop.
type parameterOwner interface {
	// whisperSignal fans a SIG frame out to every explicit subscriber plus
	// every monitor, in that order (§4.6, §5 ordering guarantee). The node
	// supplies its own monitor_out set; subscribers come from the parameter.
	whisperSignal(subscribers []SubscriberKey, sigID SignalID, v Value)
	// notifyModified wraps delta along path and whispers MOD to monitor_out,
	// per §4.7. origin, if non-nil, is excluded from the fan-out.
	notifyModified(path []string, delta map[string]Value, origin *PeerID)
}

// Parameter is one registered value on the local node (§3, §4.2).
type Parameter struct {
	mu sync.Mutex

	Name       string
	Access     Access
	TypeHint   string
	Signature  string
	Min        *float64
	Max        *float64
	Step       *float64
	ObjectPath []string

	value Value
	sigID SignalID

	// subscribers is an ordered set of (peer, recv_sig_id) pairs; populated
	// only when Access has AccessEmit.
	subscribers []SubscriberKey

	owner parameterOwner
}

// NewParameter constructs an unregistered Parameter. Its sig_id is
// NoSignalID until a ParameterRegistry inserts it (invariant P2).
func NewParameter(name string, value Value, access Access, typeHint, signature string) *Parameter {
	return &Parameter{
		Name:      name,
		Access:    access,
		TypeHint:  typeHint,
		Signature: signature,
		value:     value,
		sigID:     NoSignalID,
	}
}

// bindOwner attaches the node-side callbacks used for SIG/MOD fan-out. Called
// by the Node during registration, before the parameter is reachable by
// other goroutines (the loop is single-threaded past this point, §5).
func (p *Parameter) bindOwner(owner parameterOwner) { p.owner = owner }

// SigID returns the parameter's current signal id, or NoSignalID if it is
// not currently a member of any registry.
func (p *Parameter) SigID() SignalID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sigID
}

// setSigID is called only by ParameterRegistry during insert/remove.
func (p *Parameter) setSigID(id SignalID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sigID = id
}

// Get returns the parameter's current value.
func (p *Parameter) Get() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set assigns v unconditionally. If the parameter is an emitter, it additionally
// fans a SIG frame out to subscribers and monitors (§4.2, invariant P1).
// Set never re-emits a MOD — SIG is the sole transport for value changes on an
// emitter parameter.
func (p *Parameter) Set(v Value) {
	p.mu.Lock()
	p.value = v
	isEmitter := p.Access.Has(AccessEmit)
	sigID := p.sigID
	subs := append([]SubscriberKey(nil), p.subscribers...)
	owner := p.owner
	p.mu.Unlock()

	if isEmitter && owner != nil {
		owner.whisperSignal(subs, sigID, v)
	}
}

// setLocal assigns v without any fan-out. Used by the SIG receive path
// (§4.6) where the inequality gate has already been evaluated by the caller,
// and by peers_caps projection where no local emitter semantics apply.
func (p *Parameter) setLocal(v Value) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

// SubscribeReceiver adds (recvPeer, recvSigID) to the subscriber set. If the
// pair is new, a MOD describing the updated subscriber list is emitted to
// monitors (§4.2).
func (p *Parameter) SubscribeReceiver(recvPeer PeerID, recvSigID SignalID) {
	key := SubscriberKey{Peer: recvPeer, Sig: recvSigID}

	p.mu.Lock()
	for _, existing := range p.subscribers {
		if existing == key {
			p.mu.Unlock()
			return
		}
	}
	p.subscribers = append(p.subscribers, key)
	p.notifySubscribersLocked()
	p.mu.Unlock()
}

// UnsubscribeReceiver removes (recvPeer, recvSigID) from the subscriber set,
// emitting a MOD if a binding was actually removed. Idempotent (§4.5).
func (p *Parameter) UnsubscribeReceiver(recvPeer PeerID, recvSigID SignalID) {
	key := SubscriberKey{Peer: recvPeer, Sig: recvSigID}

	p.mu.Lock()
	idx := -1
	for i, existing := range p.subscribers {
		if existing == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return
	}
	p.subscribers = append(p.subscribers[:idx], p.subscribers[idx+1:]...)
	p.notifySubscribersLocked()
	p.mu.Unlock()
}

// RemoveSubscribersForPeer drops every subscriber binding for peer (§4.4
// peer-exit GC). Returns true if any binding was removed.
func (p *Parameter) RemoveSubscribersForPeer(peer PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	kept := p.subscribers[:0]
	for _, existing := range p.subscribers {
		if existing.Peer == peer {
			changed = true
			continue
		}
		kept = append(kept, existing)
	}
	p.subscribers = kept
	if changed {
		p.notifySubscribersLocked()
	}
	return changed
}

// Subscribers returns a snapshot of the current subscriber set.
func (p *Parameter) Subscribers() []SubscriberKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SubscriberKey(nil), p.subscribers...)
}

// notifySubscribersLocked must be called with p.mu held; it emits the MOD
// describing the parameter's new subscriber list to monitors.
func (p *Parameter) notifySubscribersLocked() {
	if p.owner == nil {
		return
	}
	delta := map[string]Value{
		p.Name: p.toDictLocked(),
	}
	path := append([]string(nil), p.ObjectPath...)
	p.owner.notifyModified(path, delta, nil)
}

// ToDict produces the capability-tree projection of the parameter (§4.2).
func (p *Parameter) ToDict() Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toDictLocked()
}

// toDictLocked must be called with p.mu held.
func (p *Parameter) toDictLocked() Value {
	m := map[string]Value{
		"name":     NewString(p.Name),
		"value":    p.value,
		"access":   NewString(p.Access.String()),
		"typeHint": NewString(p.TypeHint),
		"sig":      NewString(p.Signature),
		"sig_id":   sigIDValue(p.sigID),
	}
	if p.Min != nil {
		m["min"] = NewFloat(*p.Min)
	}
	if p.Max != nil {
		m["max"] = NewFloat(*p.Max)
	}
	if p.Step != nil {
		m["step"] = NewFloat(*p.Step)
	}
	if p.Access.Has(AccessEmit) {
		subs := make([]Value, len(p.subscribers))
		for i, s := range p.subscribers {
			subs[i] = subscriberKeyValue(s)
		}
		m["subscribers"] = NewList(subs)
	}
	return NewMap(m)
}

// sigIDValue encodes a SignalId as a Value, using KindInt for an assigned id
// and a null-ish empty string marker for NoSignalID (mirrors the wire
// grammar's use of `null` for an unassigned/wildcard id).
func sigIDValue(id SignalID) Value {
	if !id.Valid() {
		return NewString("")
	}
	return NewInt(int64(id))
}

func subscriberKeyValue(k SubscriberKey) Value {
	return NewList([]Value{NewString(k.Peer.String()), sigIDValue(k.Sig)})
}
