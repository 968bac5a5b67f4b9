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

// Package httpapi is a read-only gin introspection surface over a running
// ocp.Node: its own capability tree, the peers it knows about, its
// parameter registry, and a live event stream over a websocket.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ocpctl/ocp/internal/config"
	"github.com/ocpctl/ocp/internal/ocp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	rateLimitRate  = time.Second
	rateLimitLimit = 20
)

// Server wraps the introspection API's http.Server so cmd can start and
// stop it alongside the process's other servers.
type Server struct {
	http *http.Server
	hub  *eventHub
}

// NewServer builds (but does not start) the introspection server for node.
// Returns nil if the HTTP API is disabled.
func NewServer(cfg *config.Config, node *ocp.Node) *Server {
	if !cfg.HTTP.Enabled {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("ocp-httpapi"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	r.Use(cors.New(corsConfig))

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  rateLimitRate,
		Limit: rateLimitLimit,
	})
	capabilitiesLimiter := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.String(http.StatusTooManyRequests, "too many requests, retry after %s", time.Until(info.ResetTime))
		},
		KeyFunc: func(c *gin.Context) string { return c.ClientIP() },
	})

	hub := newEventHub(node)

	applyRoutes(r, node, hub, capabilitiesLimiter)

	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port),
			Handler:           r,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

// Start blocks serving until the server is shut down or fails. Call from a
// goroutine.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down, closing any open websocket
// connections.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.hub.close()
	return s.http.Shutdown(ctx)
}
