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
	"fmt"
	"sync"
)

// HandlerFunc processes one decoded frame's payload, received via whisper or
// shout from sender.
type HandlerFunc func(sender PeerID, payload json.RawMessage) error

// Dispatcher routes inbound control-message frames to handlers keyed by
// FrameKind. Unknown keys fall through to ErrMalformedFrame unless a handler
// was explicitly registered for them (§6: "routed to handle_<KEY> if
// present, else error").
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[FrameKind]HandlerFunc
}

// NewDispatcher constructs an empty Dispatcher. Node wires in the eight
// built-in handlers during construction.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameKind]HandlerFunc)}
}

// RegisterHandler installs or replaces the handler for kind.
func (d *Dispatcher) RegisterHandler(kind FrameKind, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = fn
}

// Dispatch decodes raw as a Frame and invokes the registered handler for its
// kind, attributing the message to sender.
func (d *Dispatcher) Dispatch(sender PeerID, raw []byte) error {
	frame, err := DecodeFrame(raw)
	if err != nil {
		return err
	}

	d.mu.RLock()
	fn, ok := d.handlers[frame.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no handler for key %q", ErrMalformedFrame, frame.Kind)
	}
	return fn(sender, frame.Payload)
}
