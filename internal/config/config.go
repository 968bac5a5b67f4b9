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

// Package config defines OCP's typed, validated configuration, loaded by
// github.com/USA-RedDragon/configulator from flags, environment variables,
// and an optional config file.
package config

// Config is the root configuration object for an OCP node process.
type Config struct {
	LogLevel  LogLevel  `name:"log-level" description:"Logging level (debug, info, warn, error)" default:"info"`
	Node      Node      `name:"node" description:"Identity of this OCP node"`
	Substrate Substrate `name:"substrate" description:"Peer-discovery and messaging transport"`
	Redis     Redis     `name:"redis" description:"Redis connection, used by the redis substrate backend"`
	HTTP      HTTP      `name:"http" description:"Read-only HTTP introspection API"`
	Metrics   Metrics   `name:"metrics" description:"Prometheus metrics server"`
	PProf     PProf     `name:"pprof" description:"pprof debug server"`
}

// Node identifies this process on the substrate (§3, §6).
type Node struct {
	// Name is a human-readable label; it has no protocol meaning beyond
	// appearing in logs and the introspection API.
	Name string `name:"name" description:"Human-readable node name" default:"ocp-node"`
	// Group is the substrate group this node joins on startup (§6's join).
	Group string `name:"group" description:"Substrate group to join" default:"ocp"`
}

// Substrate selects and configures the peer-discovery/messaging transport
// (internal/substrate, SPEC_FULL §B).
type Substrate struct {
	Backend SubstrateBackend `name:"backend" description:"Substrate backend: memory or redis" default:"memory"`
	// PresenceInterval is how often the redis backend refreshes its presence
	// key and sweeps expired peers into synthetic EXIT events.
	PresenceInterval int `name:"presence-interval-seconds" description:"Redis backend presence refresh interval, in seconds" default:"5"`
	// PresenceTTL is how long a presence key lives before a peer is
	// considered gone if it is not refreshed.
	PresenceTTL int `name:"presence-ttl-seconds" description:"Redis backend presence key TTL, in seconds" default:"15"`
}

// Redis configures the connection used by the redis substrate backend.
type Redis struct {
	Enabled  bool   `name:"enabled" description:"Enable Redis" default:"false"`
	Host     string `name:"host" description:"Redis host" default:"localhost"`
	Port     int    `name:"port" description:"Redis port" default:"6379"`
	Password string `name:"password" description:"Redis password"`
	DB       int    `name:"db" description:"Redis logical database index" default:"0"`
}

// HTTP configures internal/httpapi's read-only introspection server.
type HTTP struct {
	Enabled bool   `name:"enabled" description:"Enable the HTTP introspection API" default:"true"`
	Bind    string `name:"bind" description:"HTTP server bind address" default:"0.0.0.0"`
	Port    int    `name:"port" description:"HTTP server port" default:"3000"`
}

// Metrics configures the Prometheus metrics server.
type Metrics struct {
	Enabled      bool   `name:"enabled" description:"Enable the metrics server" default:"true"`
	Bind         string `name:"bind" description:"Metrics server bind address" default:"0.0.0.0"`
	Port         int    `name:"port" description:"Metrics server port" default:"9100"`
	OTLPEndpoint string `name:"otlp-endpoint" description:"OTLP gRPC endpoint for trace export; empty disables tracing"`
}

// PProf configures the optional pprof debug server.
type PProf struct {
	Enabled bool   `name:"enabled" description:"Enable the pprof server" default:"false"`
	Bind    string `name:"bind" description:"PProf server bind address" default:"127.0.0.1"`
	Port    int    `name:"port" description:"PProf server port" default:"6060"`
}
