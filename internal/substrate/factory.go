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
	"fmt"
)

// Backend names a Substrate implementation, selected the same way the
// teacher's MakePubSub/MakeKV switch on config.Redis.Enabled.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config selects and parameterizes a Substrate backend.
type Config struct {
	Backend Backend
	// MemoryBus names the in-process bus to join (BackendMemory only).
	MemoryBus string
	Redis     RedisOptions
}

// New constructs a Substrate for the given configuration.
func New(ctx context.Context, cfg Config) (Substrate, error) {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis)
	case BackendMemory, "":
		bus := cfg.MemoryBus
		if bus == "" {
			bus = "default"
		}
		return NewMemory(bus)
	default:
		return nil, fmt.Errorf("substrate: unknown backend %q", cfg.Backend)
	}
}
