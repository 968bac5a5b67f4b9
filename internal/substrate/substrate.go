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

// Package substrate is the peer-discovery/group-messaging collaborator that
// §6 of the control protocol treats as an external dependency: peer
// enter/exit, whisper, shout, headers, and groups. internal/ocp.Node only
// ever talks to the Substrate interface; it never branches on which backend
// is in use, the same way the teacher's Node talks to pubsub.PubSub and
// kv.KV without knowing whether Redis or memory backs them.
package substrate

import (
	"context"
	"encoding/hex"
	"errors"
)

// PeerID is the substrate's 128-bit peer identity. It shares its underlying
// type with ocp.PeerID so the two convert freely without an import cycle
// between internal/ocp and internal/substrate.
type PeerID [16]byte

// ErrInvalidPeerID indicates a malformed peer identity string.
var ErrInvalidPeerID = errors.New("substrate: invalid peer id")

// ParsePeerID decodes a hex-encoded peer id.
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, ErrInvalidPeerID
	}
	copy(id[:], b)
	return id, nil
}

// String renders the peer id as hex.
func (p PeerID) String() string { return hex.EncodeToString(p[:]) }

// EventType names the kind of inbox event delivered by a Substrate (§6).
type EventType string

const (
	EventEnter   EventType = "ENTER"
	EventExit    EventType = "EXIT"
	EventJoin    EventType = "JOIN"
	EventLeave   EventType = "LEAVE"
	EventShout   EventType = "SHOUT"
	EventWhisper EventType = "WHISPER"
)

// Event is a single frame delivered via Substrate.Inbox: [type, peer_id,
// peer_name, (group|)?, payload_bytes] per §6.
type Event struct {
	Type     EventType
	Peer     PeerID
	PeerName string
	Group    string // set for JOIN, LEAVE, SHOUT
	Payload  []byte
}

// Substrate is the abstract peer-discovery/group-messaging dependency
// described in §6. Two concrete backends are provided: memory (in-process,
// for embedding and tests) and redis (cross-host, TTL-presence + Pub/Sub).
type Substrate interface {
	// Start brings the substrate online: announces presence, begins
	// delivering events to Inbox. Stop tears it down.
	Start(ctx context.Context) error
	Stop() error

	SetName(name string)
	Name() string
	UUID() PeerID

	SetHeader(key, value string)
	PeerHeaderValue(peer PeerID, key string) (string, bool)

	Join(group string) error
	OwnGroups() []string
	PeerGroups(peer PeerID) []string

	Whisper(peer PeerID, payload []byte) error
	Shout(group string, payload []byte) error

	// Inbox is the pollable event source. Closed when the substrate stops.
	Inbox() <-chan Event
}
