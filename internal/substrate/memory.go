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

package substrate

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// bus is the shared, in-process registry every memory-backed node joins.
// It plays the role the teacher's in-memory pubsub/kv backends play for a
// single process: no real network, just direct handoff between goroutines.
type bus struct {
	mu     sync.RWMutex
	nodes  map[PeerID]*memorySubstrate
	groups map[string]map[PeerID]struct{}
}

func newBus() *bus {
	return &bus{
		nodes:  make(map[PeerID]*memorySubstrate),
		groups: make(map[string]map[PeerID]struct{}),
	}
}

// buses is keyed by bus name so multiple independent in-process networks can
// coexist within one test binary (each test picks its own name).
var (
	busesMu sync.Mutex
	buses   = xsync.NewMap[string, *bus]()
)

func getBus(name string) *bus {
	if b, ok := buses.Load(name); ok {
		return b
	}
	busesMu.Lock()
	defer busesMu.Unlock()
	if b, ok := buses.Load(name); ok {
		return b
	}
	b := newBus()
	buses.Store(name, b)
	return b
}

const memoryInboxSize = 256

// memorySubstrate is the in-process Substrate backend. It is grounded on
// the teacher's in-memory pubsub/kv backends (internal/pubsub/memory.go,
// internal/kv/memory.go): no real transport, direct channel handoff guarded
// by the shared bus's map of participants.
type memorySubstrate struct {
	bus *bus

	mu       sync.RWMutex
	id       PeerID
	name     string
	headers  map[string]string
	ownGroup map[string]struct{}

	inbox   chan Event
	started bool
}

// NewMemory constructs a Substrate backed by the in-process bus named
// busName. Nodes sharing a bus name see each other's ENTER/EXIT/WHISPER/
// SHOUT traffic; nodes on different bus names are mutually invisible. This
// is the backend used by the test suite's multi-node scenarios (S2-S6).
func NewMemory(busName string) (Substrate, error) {
	id, err := randomPeerID()
	if err != nil {
		return nil, err
	}
	return &memorySubstrate{
		bus:      getBus(busName),
		id:       id,
		headers:  make(map[string]string),
		ownGroup: make(map[string]struct{}),
		inbox:    make(chan Event, memoryInboxSize),
	}, nil
}

func randomPeerID() (PeerID, error) {
	var id PeerID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("substrate: generating peer id: %w", err)
	}
	return id, nil
}

func (m *memorySubstrate) Start(_ context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()

	for peer, other := range m.bus.nodes {
		m.deliverLocked(Event{Type: EventEnter, Peer: peer, PeerName: other.Name()})
		other.deliver(Event{Type: EventEnter, Peer: m.id, PeerName: m.Name()})
	}
	m.bus.nodes[m.id] = m
	return nil
}

func (m *memorySubstrate) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	m.bus.mu.Lock()
	delete(m.bus.nodes, m.id)
	for group, members := range m.bus.groups {
		delete(members, m.id)
		if len(members) == 0 {
			delete(m.bus.groups, group)
		}
	}
	others := make([]*memorySubstrate, 0, len(m.bus.nodes))
	for _, other := range m.bus.nodes {
		others = append(others, other)
	}
	m.bus.mu.Unlock()

	for _, other := range others {
		other.deliver(Event{Type: EventExit, Peer: m.id, PeerName: m.Name()})
	}
	close(m.inbox)
	return nil
}

func (m *memorySubstrate) SetName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

func (m *memorySubstrate) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *memorySubstrate) UUID() PeerID { return m.id }

func (m *memorySubstrate) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

func (m *memorySubstrate) PeerHeaderValue(peer PeerID, key string) (string, bool) {
	m.bus.mu.RLock()
	other, ok := m.bus.nodes[peer]
	m.bus.mu.RUnlock()
	if !ok {
		return "", false
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	v, ok := other.headers[key]
	return v, ok
}

func (m *memorySubstrate) Join(group string) error {
	m.mu.Lock()
	m.ownGroup[group] = struct{}{}
	m.mu.Unlock()

	m.bus.mu.Lock()
	members, ok := m.bus.groups[group]
	if !ok {
		members = make(map[PeerID]struct{})
		m.bus.groups[group] = members
	}
	members[m.id] = struct{}{}
	m.bus.mu.Unlock()

	m.deliver(Event{Type: EventJoin, Peer: m.id, PeerName: m.Name(), Group: group})
	return nil
}

func (m *memorySubstrate) OwnGroups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ownGroup))
	for g := range m.ownGroup {
		out = append(out, g)
	}
	return out
}

func (m *memorySubstrate) PeerGroups(peer PeerID) []string {
	m.bus.mu.RLock()
	defer m.bus.mu.RUnlock()
	var out []string
	for group, members := range m.bus.groups {
		if _, ok := members[peer]; ok {
			out = append(out, group)
		}
	}
	return out
}

func (m *memorySubstrate) Whisper(peer PeerID, payload []byte) error {
	m.bus.mu.RLock()
	other, ok := m.bus.nodes[peer]
	m.bus.mu.RUnlock()
	if !ok {
		return fmt.Errorf("substrate: unknown peer %s", peer)
	}
	other.deliver(Event{Type: EventWhisper, Peer: m.id, PeerName: m.Name(), Payload: payload})
	return nil
}

func (m *memorySubstrate) Shout(group string, payload []byte) error {
	m.bus.mu.RLock()
	members := make([]PeerID, 0, len(m.bus.groups[group]))
	for peer := range m.bus.groups[group] {
		members = append(members, peer)
	}
	nodes := m.bus.nodes
	m.bus.mu.RUnlock()

	for _, peer := range members {
		if peer == m.id {
			continue
		}
		if other, ok := nodes[peer]; ok {
			other.deliver(Event{Type: EventShout, Peer: m.id, PeerName: m.Name(), Group: group, Payload: payload})
		}
	}
	return nil
}

func (m *memorySubstrate) Inbox() <-chan Event { return m.inbox }

// deliver pushes an event to this node's inbox, dropping it silently if the
// node has stopped (mirrors a real transport's behavior post-disconnect).
func (m *memorySubstrate) deliver(ev Event) {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return
	}
	defer func() { _ = recover() }() // a concurrent Stop may close the inbox mid-send
	select {
	case m.inbox <- ev:
	default:
	}
}

// deliverLocked is deliver for use while the caller already holds m.bus.mu
// (avoids a lock-order issue during Start's initial ENTER handshake).
func (m *memorySubstrate) deliverLocked(ev Event) {
	select {
	case m.inbox <- ev:
	default:
	}
}
