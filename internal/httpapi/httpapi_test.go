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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpctl/ocp/internal/ocp"
	"github.com/ocpctl/ocp/internal/substrate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestNode(t *testing.T) *ocp.Node {
	t.Helper()
	sub, err := substrate.New(context.Background(), substrate.Config{
		Backend:   substrate.BackendMemory,
		MemoryBus: "httpapi-" + t.Name(),
	})
	require.NoError(t, err)
	return ocp.NewNode(sub, nil)
}

func newTestEngine(t *testing.T, node *ocp.Node) (*gin.Engine, *eventHub) {
	t.Helper()
	r := gin.New()
	hub := newEventHub(node)
	applyRoutes(r, node, hub, func(c *gin.Context) { c.Next() })
	t.Cleanup(hub.close)
	return r, hub
}

func TestCapabilitiesHandlerServesSnapshotAndHonorsETag(t *testing.T) {
	t.Parallel()
	node := newTestNode(t)
	_, err := node.RegisterInt("count", 3, ocp.AccessRead, nil, nil, nil)
	require.NoError(t, err)

	r, _ := newTestEngine(t, node)

	req := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count"`)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req2 := httptest.NewRequest(http.MethodGet, "/capabilities", nil)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusNotModified, w2.Code)
}

func TestPeersHandlerListsKnownPeersAndSelf(t *testing.T) {
	t.Parallel()
	node := newTestNode(t)
	r, _ := newTestEngine(t, node)

	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Self  string `json:"self"`
		Peers []any  `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, node.Self().String(), body.Self)
	assert.Empty(t, body.Peers)
}

func TestRegistryHandlerListsRegisteredParameters(t *testing.T) {
	t.Parallel()
	node := newTestNode(t)
	_, err := node.RegisterString("label", "hi", ocp.AccessRead|ocp.AccessWrite)
	require.NoError(t, err)

	r, _ := newTestEngine(t, node)
	req := httptest.NewRequest(http.MethodGet, "/registry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "label", entries[0]["name"])
	assert.Equal(t, "rw", entries[0]["access"])
}

func TestEventHubBroadcastsLocalModificationToWebsocketClient(t *testing.T) {
	t.Parallel()
	node := newTestNode(t)

	r, _ := newTestEngine(t, node)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Registering a parameter is a local tree mutation that fires OnModified.
	_, err = node.RegisterInt("level", 0, ocp.AccessRead|ocp.AccessWrite, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "modified", got.Type)
	assert.Contains(t, got.Delta, "level")
}

func TestEventHubCloseStopsDeliveringToNewClients(t *testing.T) {
	t.Parallel()
	node := newTestNode(t)
	hub := newEventHub(node)
	hub.close()

	r := gin.New()
	r.GET("/ws/events", hub.handleWebsocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "closed hub should not register new clients or deliver events")
}
