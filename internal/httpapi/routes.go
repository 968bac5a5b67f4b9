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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/ocpctl/ocp/internal/ocp"
)

func applyRoutes(r *gin.Engine, node *ocp.Node, hub *eventHub, capabilitiesLimiter gin.HandlerFunc) {
	r.GET("/capabilities", capabilitiesLimiter, capabilitiesHandler(node))
	r.GET("/peers", peersHandler(node))
	r.GET("/registry", registryHandler(node))
	r.GET("/ws/events", hub.handleWebsocket)
}

// capabilitiesHandler serves the node's own capability tree, ETagged on a
// structural hash so polling clients can cheaply detect "nothing changed".
func capabilitiesHandler(node *ocp.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, ok := node.Tree().Snapshot().Map()
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "capability tree is not a map"})
			return
		}

		hash, err := hashstructure.Hash(snapshot, hashstructure.FormatV2, nil)
		if err == nil {
			etag := fmt.Sprintf("%x", hash)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
			c.Header("ETag", etag)
		}

		c.JSON(http.StatusOK, snapshot)
	}
}

// peersHandler lists every peer this node currently holds a capability
// mirror of.
func peersHandler(node *ocp.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		peers := node.Subscriptions().KnownPeers()
		out := make([]gin.H, 0, len(peers))
		for _, peer := range peers {
			out = append(out, gin.H{
				"peer_id":    peer.String(),
				"monitoring": node.Subscriptions().HasInboundFrom(peer),
			})
		}
		c.JSON(http.StatusOK, gin.H{"self": node.Self().String(), "peers": out})
	}
}

// registryHandler lists every locally registered parameter.
func registryHandler(node *ocp.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := node.Registry().All()
		out := make([]gin.H, 0, len(params))
		for _, p := range params {
			out = append(out, gin.H{
				"sig_id":      p.SigID(),
				"name":        p.Name,
				"access":      p.Access.String(),
				"type_hint":   p.TypeHint,
				"value":       p.Get(),
				"object_path": p.ObjectPath,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}
