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

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ocpctl/ocp/internal/ocp"
)

const eventBufferSize = 64

// event is the shape broadcast to every connected /ws/events client.
type event struct {
	Type  string         `json:"type"` // "modified", "peer_modified", or "peer_signaled"
	Peer  string         `json:"peer,omitempty"`
	Delta map[string]any `json:"delta,omitempty"`
	SigID int            `json:"sig_id,omitempty"`
	Value any            `json:"value,omitempty"`
}

// eventHub relays a Node's on_modified/on_peer_modified/on_peer_signaled
// callbacks out to every connected websocket client, mirroring
// hub.ListenForWebsocket's pubsub-to-websocket relay pattern.
type eventHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan event
	closed  bool
}

func newEventHub(node *ocp.Node) *eventHub {
	h := &eventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan event),
	}

	node.OnModified = func(delta map[string]ocp.Value) {
		h.broadcast(event{Type: "modified", Delta: toAnyMap(delta)})
	}
	node.OnPeerModified = func(peer ocp.PeerID, delta map[string]ocp.Value) {
		h.broadcast(event{Type: "peer_modified", Peer: peer.String(), Delta: toAnyMap(delta)})
	}
	node.OnPeerSignaled = func(peer ocp.PeerID, sig ocp.SigPayload) {
		h.broadcast(event{Type: "peer_signaled", Peer: peer.String(), SigID: int(sig.SigID), Value: sig.Value})
	}

	return h
}

func toAnyMap(delta map[string]ocp.Value) map[string]any {
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func (h *eventHub) broadcast(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for conn, ch := range h.clients {
		select {
		case ch <- e:
		default:
			// Slow client: drop the event rather than block the dispatch path.
			slog.Warn("httpapi: dropping event for slow websocket client", "remote", conn.RemoteAddr())
		}
	}
}

func (h *eventHub) handleWebsocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("httpapi: failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan event, eventBufferSize)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Drain client reads so Gorilla's ping/pong control frames are handled;
	// this endpoint is send-only and ignores any data frames received.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for e := range ch {
		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]chan event)
}
