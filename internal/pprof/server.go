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

// Package pprof serves net/http/pprof's debug endpoints behind gin, gated
// by config.PProf.Enabled.
package pprof

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/ocpctl/ocp/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const readTimeout = 3 * time.Second

// Server wraps the pprof http.Server so cmd can start and stop it
// alongside the rest of the process's servers.
type Server struct {
	http *http.Server
}

// NewServer builds (but does not start) the pprof server from cfg. Returns
// nil if the pprof server is disabled.
func NewServer(cfg *config.Config) *Server {
	if !cfg.PProf.Enabled {
		return nil
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("ocp-pprof"))
	}
	pprof.Register(r)

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.PProf.Bind, cfg.PProf.Port),
			Handler:           r,
			ReadHeaderTimeout: readTimeout,
		},
	}
}

// Start blocks serving until the server is shut down or fails. Call from a
// goroutine.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	slog.Info("pprof server listening", "address", s.http.Addr)
	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
