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
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// SubscriptionTables holds the per-node inbound/outbound subscription state
// described in §3. The event-loop goroutine (§5) is the only regular writer,
// but the inspection API (httpapi, ocpmetrics) reads concurrently from other
// goroutines, so every table is an xsync.Map rather than a plain map — the
// same nested-concurrent-map shape used for per-peer state elsewhere. mu
// only serializes the load-or-create sequences below (mirroring how a
// second map is lazily created under lock the first time a peer is seen);
// once a per-peer map exists, reads and writes against it need no lock.
type SubscriptionTables struct {
	mu sync.Mutex

	// inbound[peer][emitterSig] is the ordered set of our own receiver
	// sig_ids fed by that remote emitter (NoSignalID means "callback only").
	inbound *xsync.Map[PeerID, *xsync.Map[SignalID, []SignalID]]

	// monitorOut is the set of peers that receive every local emitter's SIG
	// traffic, regardless of explicit subscription (§4.6).
	monitorOut *xsync.Map[PeerID, struct{}]

	// peersCaps mirrors the last known capability tree of each known peer.
	peersCaps *xsync.Map[PeerID, *CapabilityTree]
}

// NewSubscriptionTables constructs empty tables.
func NewSubscriptionTables() *SubscriptionTables {
	return &SubscriptionTables{
		inbound:    xsync.NewMap[PeerID, *xsync.Map[SignalID, []SignalID]](),
		monitorOut: xsync.NewMap[PeerID, struct{}](),
		peersCaps:  xsync.NewMap[PeerID, *CapabilityTree](),
	}
}

// AddInbound records that recvSigID (possibly NoSignalID) on this node is
// fed by (emitterPeer, emitterSigID). Returns true if this is a new binding.
func (s *SubscriptionTables) AddInbound(emitterPeer PeerID, emitterSigID SignalID, recvSigID SignalID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byEmitter, ok := s.inbound.Load(emitterPeer)
	if !ok {
		byEmitter = xsync.NewMap[SignalID, []SignalID]()
		s.inbound.Store(emitterPeer, byEmitter)
	}
	existing, _ := byEmitter.Load(emitterSigID)
	for _, id := range existing {
		if id == recvSigID {
			return false
		}
	}
	byEmitter.Store(emitterSigID, append(existing, recvSigID))
	return true
}

// RemoveInbound removes a single (emitterPeer, emitterSigID, recvSigID)
// binding. Idempotent. Cleans up now-empty intermediate maps.
func (s *SubscriptionTables) RemoveInbound(emitterPeer PeerID, emitterSigID SignalID, recvSigID SignalID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeInboundLocked(emitterPeer, emitterSigID, recvSigID)
}

// Caller MUST hold s.mu.
func (s *SubscriptionTables) removeInboundLocked(emitterPeer PeerID, emitterSigID SignalID, recvSigID SignalID) bool {
	byEmitter, ok := s.inbound.Load(emitterPeer)
	if !ok {
		return false
	}
	ids, ok := byEmitter.Load(emitterSigID)
	if !ok {
		return false
	}
	idx := -1
	for i, existing := range ids {
		if existing == recvSigID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	ids = append(ids[:idx], ids[idx+1:]...)
	if len(ids) == 0 {
		byEmitter.Delete(emitterSigID)
	} else {
		byEmitter.Store(emitterSigID, ids)
	}
	if byEmitter.Size() == 0 {
		s.inbound.Delete(emitterPeer)
	}
	return true
}

// InboundReceivers returns the ordered set of local receiver sig_ids fed by
// (emitterPeer, emitterSigID).
func (s *SubscriptionTables) InboundReceivers(emitterPeer PeerID, emitterSigID SignalID) []SignalID {
	byEmitter, ok := s.inbound.Load(emitterPeer)
	if !ok {
		return nil
	}
	ids, _ := byEmitter.Load(emitterSigID)
	return append([]SignalID(nil), ids...)
}

// HasInboundFrom reports whether this node has any inbound binding at all
// (explicit or wildcard) to emitterPeer.
func (s *SubscriptionTables) HasInboundFrom(emitterPeer PeerID) bool {
	_, ok := s.inbound.Load(emitterPeer)
	return ok
}

// DropPeerInbound removes every inbound binding sourced from peer (peer-exit
// GC, §4.4).
func (s *SubscriptionTables) DropPeerInbound(peer PeerID) {
	s.inbound.Delete(peer)
}

// AddMonitor adds peer to the monitor_out set. Returns true if it was not
// already present.
func (s *SubscriptionTables) AddMonitor(peer PeerID) bool {
	_, loaded := s.monitorOut.LoadOrStore(peer, struct{}{})
	return !loaded
}

// RemoveMonitor drops peer from monitor_out. Returns true if it was present.
func (s *SubscriptionTables) RemoveMonitor(peer PeerID) bool {
	_, loaded := s.monitorOut.LoadAndDelete(peer)
	return loaded
}

// Monitors returns a snapshot of the current monitor_out set.
func (s *SubscriptionTables) Monitors() []PeerID {
	out := make([]PeerID, 0, s.monitorOut.Size())
	s.monitorOut.Range(func(p PeerID, _ struct{}) bool {
		out = append(out, p)
		return true
	})
	return out
}

// PeerCaps returns the mirrored capability tree for peer, creating an empty
// one if this is the first time the peer is seen (ENTER handling, §4.4).
func (s *SubscriptionTables) PeerCaps(peer PeerID) *CapabilityTree {
	if t, ok := s.peersCaps.Load(peer); ok {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.peersCaps.Load(peer); ok {
		return t
	}
	t := NewCapabilityTree()
	s.peersCaps.Store(peer, t)
	return t
}

// PeerCapsIfKnown returns the mirrored tree for peer without creating one.
func (s *SubscriptionTables) PeerCapsIfKnown(peer PeerID) (*CapabilityTree, bool) {
	return s.peersCaps.Load(peer)
}

// DropPeer removes every trace of peer: its capability mirror, its monitor
// subscription, and its inbound bindings (§4.4). Emitter-side subscriber
// cleanup lives on each Parameter and is driven separately by the Node.
func (s *SubscriptionTables) DropPeer(peer PeerID) {
	s.peersCaps.Delete(peer)
	s.monitorOut.Delete(peer)
	s.inbound.Delete(peer)
}

// KnownPeers returns the set of peers with a capability mirror.
func (s *SubscriptionTables) KnownPeers() []PeerID {
	out := make([]PeerID, 0, s.peersCaps.Size())
	s.peersCaps.Range(func(p PeerID, _ *CapabilityTree) bool {
		out = append(out, p)
		return true
	})
	return out
}
