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

package config

import "errors"

var (
	// ErrInvalidLogLevel indicates that the provided log level is not valid.
	ErrInvalidLogLevel = errors.New("invalid log level provided")
	// ErrNodeNameRequired indicates that the node name is empty.
	ErrNodeNameRequired = errors.New("node name is required")
	// ErrNodeGroupRequired indicates that the substrate group is empty.
	ErrNodeGroupRequired = errors.New("node substrate group is required")
	// ErrInvalidSubstrateBackend indicates that the provided substrate backend is not valid.
	ErrInvalidSubstrateBackend = errors.New("invalid substrate backend provided, must be memory or redis")
	// ErrInvalidPresenceInterval indicates that the presence interval is not positive.
	ErrInvalidPresenceInterval = errors.New("substrate presence interval must be positive")
	// ErrInvalidPresenceTTL indicates that the presence TTL is not greater than the refresh interval.
	ErrInvalidPresenceTTL = errors.New("substrate presence TTL must be greater than the presence interval")
	// ErrInvalidRedisHost indicates that the provided Redis host is not valid.
	ErrInvalidRedisHost = errors.New("invalid Redis host provided")
	// ErrInvalidRedisPort indicates that the provided Redis port is not valid.
	ErrInvalidRedisPort = errors.New("invalid Redis port provided")
	// ErrInvalidHTTPHost indicates that the provided HTTP host is not valid.
	ErrInvalidHTTPHost = errors.New("invalid HTTP host provided")
	// ErrInvalidHTTPPort indicates that the provided HTTP port is not valid.
	ErrInvalidHTTPPort = errors.New("invalid HTTP port provided")
	// ErrInvalidMetricsBindAddress indicates that the provided metrics server bind address is not valid.
	ErrInvalidMetricsBindAddress = errors.New("invalid metrics server bind address provided")
	// ErrInvalidMetricsPort indicates that the provided metrics server port is not valid.
	ErrInvalidMetricsPort = errors.New("invalid metrics server port provided")
	// ErrInvalidPProfBindAddress indicates that the provided PProf server bind address is not valid.
	ErrInvalidPProfBindAddress = errors.New("invalid PProf server bind address provided")
	// ErrInvalidPProfPort indicates that the provided PProf server port is not valid.
	ErrInvalidPProfPort = errors.New("invalid PProf server port provided")
	// ErrRedisRequiredForSubstrate indicates that the redis substrate backend is selected but Redis is not enabled.
	ErrRedisRequiredForSubstrate = errors.New("redis must be enabled when substrate.backend is redis")
)

// Validate validates the Node configuration.
func (n Node) Validate() error {
	if n.Name == "" {
		return ErrNodeNameRequired
	}
	if n.Group == "" {
		return ErrNodeGroupRequired
	}
	return nil
}

// Validate validates the Substrate configuration.
func (s Substrate) Validate() error {
	if s.Backend != SubstrateBackendMemory && s.Backend != SubstrateBackendRedis {
		return ErrInvalidSubstrateBackend
	}

	if s.Backend == SubstrateBackendRedis {
		if s.PresenceInterval <= 0 {
			return ErrInvalidPresenceInterval
		}
		if s.PresenceTTL <= s.PresenceInterval {
			return ErrInvalidPresenceTTL
		}
	}

	return nil
}

// Validate validates the Redis configuration.
func (r Redis) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Host == "" {
		return ErrInvalidRedisHost
	}
	if r.Port <= 0 || r.Port > 65535 {
		return ErrInvalidRedisPort
	}

	return nil
}

// Validate validates the HTTP configuration.
func (h HTTP) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.Bind == "" {
		return ErrInvalidHTTPHost
	}
	if h.Port <= 0 || h.Port > 65535 {
		return ErrInvalidHTTPPort
	}

	return nil
}

// Validate validates the Metrics configuration.
func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Bind == "" {
		return ErrInvalidMetricsBindAddress
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMetricsPort
	}

	return nil
}

// Validate validates the PProf configuration.
func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.Bind == "" {
		return ErrInvalidPProfBindAddress
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ErrInvalidPProfPort
	}

	return nil
}

// Validate validates the full configuration, delegating to each group.
func (c Config) Validate() error {
	if c.LogLevel != LogLevelDebug &&
		c.LogLevel != LogLevelInfo &&
		c.LogLevel != LogLevelWarn &&
		c.LogLevel != LogLevelError {
		return ErrInvalidLogLevel
	}

	if err := c.Node.Validate(); err != nil {
		return err
	}

	if err := c.Substrate.Validate(); err != nil {
		return err
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.HTTP.Validate(); err != nil {
		return err
	}

	if err := c.Metrics.Validate(); err != nil {
		return err
	}

	if err := c.PProf.Validate(); err != nil {
		return err
	}

	if c.Substrate.Backend == SubstrateBackendRedis && !c.Redis.Enabled {
		return ErrRedisRequiredForSubstrate
	}

	return nil
}
